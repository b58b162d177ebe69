package renderer_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/bloom/internal/config"
	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/gpu/gputest"
	"github.com/vkngwrapper/bloom/internal/input"
	"github.com/vkngwrapper/bloom/internal/mesh"
	"github.com/vkngwrapper/bloom/internal/renderer"
	"github.com/vkngwrapper/bloom/internal/uniforms"
)

const carOBJ = `
o car
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
vn 0 0 1
vt 0 0
usemtl paint
f 1/1/1 2/1/1 3/1/1 4/1/1
usemtl lamp
f 1/1/1 2/1/1 5/1/1
`

const carMTL = `
newmtl paint
Kd 0.8 0.1 0.1
Ks 0.5 0.5 0.5
Ns 32

newmtl lamp
Kd 1 1 1
Ke 5 5 4
Ns 8
`

var (
	startExtent = core1_0.Extent2D{Width: 800, Height: 600}
	startFormat = core1_0.FormatB8G8R8A8SRGB
)

func shaderFS() fstest.MapFS {
	s := config.Default().Renderer.Shaders
	fsys := fstest.MapFS{}
	for _, name := range []string{
		s.LitVert, s.LitFrag, s.BrightVert, s.BrightFrag,
		s.BlurHVert, s.BlurHFrag, s.BlurVVert, s.BlurVFrag,
		s.CompositeVert, s.CompositeFrag,
	} {
		// SPIR-V magic number; the fake only checks word alignment.
		fsys[name] = &fstest.MapFile{Data: []byte{0x03, 0x02, 0x23, 0x07}}
	}
	return fsys
}

type fixture struct {
	c     *qt.C
	dev   *gputest.Device
	sc    *gputest.Swapchain
	r     *renderer.Renderer
	hook  *test.Hook
	state *input.State
	// base is the number of submissions made before the first frame.
	base int
}

func loadCar(c *qt.C) *mesh.Model {
	model, err := mesh.LoadReader("car", strings.NewReader(carOBJ), strings.NewReader(carMTL))
	c.Assert(err, qt.IsNil)
	return model
}

func newLog() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

func newFixture(c *qt.C, images int) *fixture {
	dev := gputest.NewDevice()
	sc := gputest.NewSwapchain(dev, startFormat, startExtent, images)
	log, hook := newLog()

	r, err := renderer.New(dev, sc, loadCar(c), shaderFS(), config.Default().Renderer, log)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Misuse(), qt.HasLen, 0)
	return &fixture{c: c, dev: dev, sc: sc, r: r, hook: hook, state: input.NewState(), base: len(dev.Submissions)}
}

func (f *fixture) draw() renderer.FrameOutcome {
	outcome, err := f.r.DrawFrame(f.state)
	f.c.Assert(err, qt.IsNil)
	f.c.Assert(f.dev.Misuse(), qt.HasLen, 0)
	return outcome
}

func (f *fixture) pass(name string) renderer.Pass {
	for _, p := range f.r.Passes() {
		if p.Name == name {
			return p
		}
	}
	f.c.Fatalf("no pass named %q", name)
	return renderer.Pass{}
}

// colorView is the view a pass renders into.
func (f *fixture) colorView(name string) gpu.ImageView {
	return f.dev.Framebuffer(f.pass(name).Framebuffer).Attachments[0]
}

// sampledView is the view bound to an input set of a pass.
func (f *fixture) sampledView(name string, input int) gpu.ImageView {
	w, ok := f.dev.Descriptor(f.pass(name).Inputs[input], 0)
	f.c.Assert(ok, qt.IsTrue)
	return w.ImageView
}

// frames returns the submissions made by DrawFrame.
func (f *fixture) frames() []gputest.Submission {
	return f.dev.Submissions[f.base:]
}

func (f *fixture) lastCommands() []gputest.Command {
	frames := f.frames()
	f.c.Assert(frames, qt.Not(qt.HasLen), 0)
	return frames[len(frames)-1].Commands
}

func liveCounts(dev *gputest.Device) map[gpu.Kind]int {
	counts := make(map[gpu.Kind]int)
	for k := gpu.KindBuffer; k <= gpu.KindSemaphore; k++ {
		counts[k] = dev.LiveCount(k)
	}
	return counts
}

func decode(c *qt.C, data []byte, block any) {
	c.Assert(binary.Read(bytes.NewReader(data), common.ByteOrder, block), qt.IsNil)
}

func TestPassGraph(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)

	var names []string
	for _, p := range f.r.Passes() {
		names = append(names, p.Name)
	}
	c.Assert(names, qt.DeepEquals, []string{"bright", "blur-h", "blur-v", "scene", "composite"})

	c.Assert(f.sampledView("blur-h", 0), qt.Equals, f.colorView("bright"))
	c.Assert(f.sampledView("blur-v", 0), qt.Equals, f.colorView("blur-h"))
	c.Assert(f.sampledView("composite", 0), qt.Equals, f.colorView("blur-v"))
	c.Assert(f.sampledView("composite", 1), qt.Equals, f.colorView("scene"))

	composite := f.pass("composite")
	c.Assert(composite.Present, qt.IsTrue)
	c.Assert(f.dev.Pipeline(composite.Pipeline).RenderPass, qt.Equals, composite.RenderPass)
	c.Assert(f.dev.Pipeline(f.pass("scene").Pipeline).DepthTest, qt.IsTrue)
	c.Assert(f.dev.Pipeline(f.pass("blur-h").Pipeline).DepthTest, qt.IsFalse)
	c.Assert(f.dev.Pipeline(f.pass("bright").Pipeline).VertexBindings, qt.HasLen, 5)
	for _, p := range f.r.Passes() {
		c.Assert(f.dev.Pipeline(p.Pipeline).Extent, qt.Equals, startExtent, qt.Commentf("pass %s", p.Name))
	}
}

func TestRenderPassFlavors(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)

	present := f.dev.RenderPass(f.pass("composite").RenderPass)
	c.Assert(present.Color.Format, qt.Equals, startFormat)
	c.Assert(present.Color.FinalLayout, qt.Equals, khr_swapchain.ImageLayoutPresentSrc)
	c.Assert(present.Depth.FinalLayout, qt.Equals, core1_0.ImageLayoutDepthStencilAttachmentOptimal)
	c.Assert(present.Dependencies, qt.HasLen, 1)
	depth := present.Dependencies[0]
	c.Assert(depth.SrcSubpass, qt.Equals, core1_0.SubpassExternal)
	c.Assert(depth.SrcStageMask&core1_0.PipelineStageLateFragmentTests, qt.Not(qt.Equals), core1_0.PipelineStageFlags(0))
	c.Assert(depth.SrcAccessMask, qt.Equals, core1_0.AccessDepthStencilAttachmentWrite)
	c.Assert(depth.DstStageMask&core1_0.PipelineStageEarlyFragmentTests, qt.Not(qt.Equals), core1_0.PipelineStageFlags(0))
	c.Assert(depth.DstAccessMask&core1_0.AccessDepthStencilAttachmentWrite, qt.Not(qt.Equals), core1_0.AccessFlags(0))

	offscreen := f.dev.RenderPass(f.pass("bright").RenderPass)
	c.Assert(offscreen.Color.FinalLayout, qt.Equals, core1_0.ImageLayoutShaderReadOnlyOptimal)
	c.Assert(offscreen.Dependencies, qt.HasLen, 2)

	in, out := offscreen.Dependencies[0], offscreen.Dependencies[1]
	c.Assert(in.SrcSubpass, qt.Equals, core1_0.SubpassExternal)
	c.Assert(in.SrcAccessMask&core1_0.AccessShaderRead, qt.Not(qt.Equals), core1_0.AccessFlags(0))
	c.Assert(in.DstAccessMask&core1_0.AccessColorAttachmentWrite, qt.Not(qt.Equals), core1_0.AccessFlags(0))
	c.Assert(out.DstSubpass, qt.Equals, core1_0.SubpassExternal)
	c.Assert(out.SrcAccessMask, qt.Equals, core1_0.AccessColorAttachmentWrite)
	c.Assert(out.DstAccessMask, qt.Equals, core1_0.AccessShaderRead)
	for _, dep := range offscreen.Dependencies {
		c.Assert(dep.DependencyFlags, qt.Equals, core1_0.DependencyByRegion)
	}
}

func TestDrawFrameRecordsEveryPass(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)

	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	c.Assert(f.frames(), qt.HasLen, 1)

	sub := f.frames()[0]
	c.Assert(sub.Wait, qt.Not(qt.Equals), gpu.Semaphore(0))
	c.Assert(sub.Signal, qt.Not(qt.Equals), gpu.Semaphore(0))
	c.Assert(sub.Fence, qt.Not(qt.Equals), gpu.Fence(0))
	c.Assert(sub.WaitStage, qt.Equals, core1_0.PipelineStageColorAttachmentOutput)

	var begins []gputest.Command
	draws := 0
	for _, cmd := range sub.Commands {
		switch cmd.Op {
		case gputest.OpBeginRenderPass:
			begins = append(begins, cmd)
		case gputest.OpDraw:
			draws++
		}
	}
	c.Assert(begins, qt.HasLen, 5)
	// Two submeshes in each mesh pass plus three fullscreen triangles.
	c.Assert(draws, qt.Equals, 2*2+3)

	clearOf := func(cmd gputest.Command) core1_0.ClearValueFloat {
		return cmd.ClearValues[0].(core1_0.ClearValueFloat)
	}
	c.Assert(clearOf(begins[0]), qt.Equals, core1_0.ClearValueFloat{0, 0, 0, 1})
	c.Assert(clearOf(begins[1]), qt.Equals, core1_0.ClearValueFloat{0, 0, 0, 1})
	c.Assert(clearOf(begins[2]), qt.Equals, core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1})
	c.Assert(clearOf(begins[4]), qt.Equals, core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1})
	for _, b := range begins {
		c.Assert(b.Extent, qt.Equals, startExtent)
	}
}

func TestUniformUpdatesAreFencedByBarriers(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()

	cmds := f.lastCommands()
	updates := 0
	for i, cmd := range cmds {
		if cmd.Op == gputest.OpBeginRenderPass {
			break
		}
		if cmd.Op != gputest.OpUpdateBuffer {
			continue
		}
		updates++
		c.Assert(i > 0 && i+1 < len(cmds), qt.IsTrue)
		before, after := cmds[i-1], cmds[i+1]

		c.Assert(before.Op, qt.Equals, gputest.OpPipelineBarrier)
		c.Assert(before.DstStage, qt.Equals, core1_0.PipelineStageTransfer)
		c.Assert(before.Barriers, qt.HasLen, 1)
		c.Assert(before.Barriers[0].Buffer, qt.Equals, cmd.Dst)
		c.Assert(before.Barriers[0].SrcAccess, qt.Equals, core1_0.AccessUniformRead)
		c.Assert(before.Barriers[0].DstAccess, qt.Equals, core1_0.AccessTransferWrite)

		c.Assert(after.Op, qt.Equals, gputest.OpPipelineBarrier)
		c.Assert(after.SrcStage, qt.Equals, core1_0.PipelineStageTransfer)
		c.Assert(after.DstStage, qt.Equals, before.SrcStage)
		c.Assert(after.Barriers[0].Buffer, qt.Equals, cmd.Dst)
		c.Assert(after.Barriers[0].SrcAccess, qt.Equals, core1_0.AccessTransferWrite)
		c.Assert(after.Barriers[0].DstAccess, qt.Equals, core1_0.AccessUniformRead)

		want := core1_0.PipelineStageFragmentShader
		if len(cmd.Data) == 372 {
			want = core1_0.PipelineStageVertexShader
		}
		c.Assert(after.DstStage, qt.Equals, want)
	}
	// Scene plus two blocks for each of the two materials.
	c.Assert(updates, qt.Equals, 5)
}

// boundBuffer returns the uniform buffer behind the set bound at firstSet in
// the last frame, offset by index within the bound sets.
func (f *fixture) boundBuffer(firstSet, index int) gpu.Buffer {
	for _, cmd := range f.lastCommands() {
		if cmd.Op == gputest.OpBindDescriptorSets && cmd.FirstSet == firstSet && len(cmd.Sets) > index {
			w, ok := f.dev.Descriptor(cmd.Sets[index], 0)
			f.c.Assert(ok, qt.IsTrue)
			return w.Buffer
		}
	}
	f.c.Fatalf("no descriptor set bound at %d", firstSet)
	return 0
}

func TestLightCountReachesUniforms(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)

	f.state.Key(input.Key3, input.Press)
	f.draw()

	var scene uniforms.SceneUniform
	decode(c, f.dev.BufferData(f.boundBuffer(0, 0)), &scene)
	c.Assert(scene.Lights, qt.Equals, int32(3))
	c.Assert(scene.Camera.Col(3), qt.Equals, f.state.Position.Vec4(1))

	var pbr uniforms.MaterialPBRUniform
	decode(c, f.dev.BufferData(f.boundBuffer(1, 1)), &pbr)
	c.Assert(pbr.Lights, qt.Equals, int32(3))

	f.state.Key(input.Key1, input.Press)
	f.draw()
	decode(c, f.dev.BufferData(f.boundBuffer(0, 0)), &scene)
	c.Assert(scene.Lights, qt.Equals, int32(1))
}

func TestLightCountTracksEveryFrame(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)

	for _, tc := range []struct {
		key  input.Key
		want int32
	}{
		{input.Key1, 1},
		{input.Key2, 2},
		{input.Key3, 3},
		{input.Key1, 1},
	} {
		f.state.Key(tc.key, input.Press)
		f.draw()

		var scene uniforms.SceneUniform
		decode(c, f.dev.BufferData(f.boundBuffer(0, 0)), &scene)
		c.Assert(scene.Lights, qt.Equals, tc.want)

		var pbr uniforms.MaterialPBRUniform
		decode(c, f.dev.BufferData(f.boundBuffer(1, 1)), &pbr)
		c.Assert(pbr.Lights, qt.Equals, tc.want)
	}
}

func TestSlotFollowsAcquiredImage(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.sc.Acquires = []gputest.Acquire{{Index: 2}, {Index: 0}, {Index: 2}}

	for i := 0; i < 3; i++ {
		c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	}
	subs := f.frames()
	c.Assert(subs, qt.HasLen, 3)
	c.Assert(subs[0].CommandBuffer, qt.Equals, subs[2].CommandBuffer)
	c.Assert(subs[0].Fence, qt.Equals, subs[2].Fence)
	c.Assert(subs[1].CommandBuffer, qt.Not(qt.Equals), subs[0].CommandBuffer)
	c.Assert(subs[1].Fence, qt.Not(qt.Equals), subs[0].Fence)

	// The composite pass targets the framebuffer of the acquired image.
	compositeFB := func(s gputest.Submission) gpu.Framebuffer {
		var fb gpu.Framebuffer
		for _, cmd := range s.Commands {
			if cmd.Op == gputest.OpBeginRenderPass {
				fb = cmd.Framebuffer
			}
		}
		return fb
	}
	c.Assert(compositeFB(subs[0]), qt.Equals, compositeFB(subs[2]))
	c.Assert(compositeFB(subs[1]), qt.Not(qt.Equals), compositeFB(subs[0]))
	views := f.sc.ImageViews()
	c.Assert(f.dev.Framebuffer(compositeFB(subs[1])).Attachments[0], qt.Equals, views[0])
	c.Assert(f.dev.Framebuffer(compositeFB(subs[0])).Attachments[0], qt.Equals, views[2])

	// Each frame waits and resets its slot fence before recording into the
	// slot's command buffer, and submits before presenting.
	var ops []string
	for _, e := range f.dev.Events {
		ops = append(ops, e.Op)
	}
	frame := []string{
		gputest.EventAcquire, gputest.EventWait, gputest.EventReset,
		gputest.EventBeginCmds, gputest.EventSubmit, gputest.EventPresent,
	}
	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, frame...)
	}
	c.Assert(ops[len(ops)-len(want):], qt.DeepEquals, want)
}

func TestResizeRebuildsTargetsAndDescriptors(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()

	oldBright := f.colorView("bright")
	oldScene := f.colorView("scene")
	oldLit := f.pass("scene").Pipeline

	bigger := core1_0.Extent2D{Width: 1024, Height: 768}
	f.sc.Resize(bigger)
	f.r.NotifyResized()
	c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
	c.Assert(f.sc.Recreations, qt.Equals, 1)
	c.Assert(f.r.Extent(), qt.Equals, bigger)

	c.Assert(f.dev.Live(oldBright), qt.IsFalse)
	c.Assert(f.dev.Live(oldScene), qt.IsFalse)
	c.Assert(f.dev.Live(oldLit), qt.IsFalse)

	c.Assert(f.sampledView("blur-h", 0), qt.Equals, f.colorView("bright"))
	c.Assert(f.sampledView("composite", 1), qt.Equals, f.colorView("scene"))
	c.Assert(f.dev.Image(f.dev.ViewImage(f.colorView("bright"))).Extent, qt.Equals, bigger)
	for _, p := range f.r.Passes() {
		c.Assert(f.dev.Pipeline(p.Pipeline).Extent, qt.Equals, bigger)
	}

	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	for _, cmd := range f.lastCommands() {
		if cmd.Op == gputest.OpBeginRenderPass {
			c.Assert(cmd.Extent, qt.Equals, bigger)
		}
	}

	var rebuilt bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Swapchain rebuilt" {
			rebuilt = true
			c.Assert(e.Data["width"], qt.Equals, 1024)
			c.Assert(e.Data["extent_changed"], qt.Equals, true)
		}
	}
	c.Assert(rebuilt, qt.IsTrue)
}

func TestResizesAfterNoOpRebuilds(t *testing.T) {
	bigger := core1_0.Extent2D{Width: 1280, Height: 720}
	for _, noops := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d no-op", noops), func(t *testing.T) {
			c := qt.New(t)
			f := newFixture(c, 3)
			f.draw()

			for i := 0; i < noops; i++ {
				f.r.NotifyResized()
				c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
			}
			c.Assert(f.r.Extent(), qt.Equals, startExtent)

			var old []gpu.ImageView
			for _, p := range f.r.Passes() {
				if p.Name != "composite" {
					old = append(old, f.colorView(p.Name))
				}
			}
			images, views := f.dev.LiveCount(gpu.KindImage), f.dev.LiveCount(gpu.KindImageView)

			f.sc.Resize(bigger)
			f.r.NotifyResized()
			c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
			c.Assert(f.sc.Recreations, qt.Equals, noops+1)
			c.Assert(f.r.Extent(), qt.Equals, bigger)

			for _, v := range old {
				c.Assert(f.dev.Live(v), qt.IsFalse)
				c.Assert(f.dev.Live(f.dev.ViewImage(v)), qt.IsFalse)
			}
			c.Assert(f.dev.LiveCount(gpu.KindImage), qt.Equals, images)
			c.Assert(f.dev.LiveCount(gpu.KindImageView), qt.Equals, views)

			for _, p := range f.r.Passes() {
				for _, set := range p.Inputs {
					w, ok := f.dev.Descriptor(set, 0)
					c.Assert(ok, qt.IsTrue)
					c.Assert(f.dev.Live(w.ImageView), qt.IsTrue)
					c.Assert(f.dev.Image(f.dev.ViewImage(w.ImageView)).Extent, qt.Equals, bigger)
				}
			}
			c.Assert(f.sampledView("blur-h", 0), qt.Equals, f.colorView("bright"))
			c.Assert(f.sampledView("blur-v", 0), qt.Equals, f.colorView("blur-h"))
			c.Assert(f.sampledView("composite", 0), qt.Equals, f.colorView("blur-v"))
			c.Assert(f.sampledView("composite", 1), qt.Equals, f.colorView("scene"))

			c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
		})
	}
}

func TestZeroAreaSurfaceDefersRebuild(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()
	counts := liveCounts(f.dev)

	f.sc.Resize(core1_0.Extent2D{})
	f.sc.Presents = []gpu.Status{gpu.StatusOutOfDate}
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	c.Assert(f.sc.Recreations, qt.Equals, 0)
	c.Assert(liveCounts(f.dev), qt.DeepEquals, counts)

	// Still minimized: nothing is acquired or rebuilt.
	frames := len(f.frames())
	c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
	c.Assert(f.sc.Recreations, qt.Equals, 0)
	c.Assert(f.frames(), qt.HasLen, frames)
	c.Assert(f.r.Extent(), qt.Equals, startExtent)

	f.sc.Resize(startExtent)
	c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
	c.Assert(f.sc.Recreations, qt.Equals, 1)
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestOutOfDateAcquireSkipsFrame(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.sc.Acquires = []gputest.Acquire{{Index: 0, Status: gpu.StatusOutOfDate}}

	c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
	c.Assert(f.frames(), qt.HasLen, 0)
	c.Assert(f.dev.DrawCount(), qt.Equals, 0)
	c.Assert(f.sc.Recreations, qt.Equals, 1)

	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	c.Assert(f.frames(), qt.HasLen, 1)
}

func TestSuboptimalAcquireLeavesNoStaleSignal(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.sc.Acquires = []gputest.Acquire{{Index: 1, Status: gpu.StatusSuboptimal}}

	c.Assert(f.draw(), qt.Equals, renderer.FrameSkipped)
	c.Assert(f.frames(), qt.HasLen, 0)

	// A reused semaphore would still carry the abandoned acquire's signal
	// and the next acquire would fail.
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestStalePresentRebuildsAfterPresenting(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.sc.Presents = []gpu.Status{gpu.StatusSuboptimal}

	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
	c.Assert(f.sc.Recreations, qt.Equals, 1)

	events := f.dev.Events
	c.Assert(len(events) >= 3, qt.IsTrue)
	tail := events[len(events)-3:]
	c.Assert(tail[0].Op, qt.Equals, gputest.EventPresent)
	c.Assert(tail[1].Op, qt.Equals, gputest.EventWaitIdle)
	c.Assert(tail[2].Op, qt.Equals, gputest.EventRecreate)

	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestRebuildIsIdempotent(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()

	c.Assert(f.r.Rebuild(), qt.IsNil)
	first := liveCounts(f.dev)
	pipelines := f.pass("scene").Pipeline

	c.Assert(f.r.Rebuild(), qt.IsNil)
	c.Assert(liveCounts(f.dev), qt.DeepEquals, first)
	c.Assert(f.dev.Misuse(), qt.HasLen, 0)

	// Nothing about the surface changed, so size-baked pipelines survive.
	c.Assert(f.pass("scene").Pipeline, qt.Equals, pipelines)
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestImageCountChangeResizesSlots(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	c.Assert(f.dev.LiveCount(gpu.KindCommandBuffer), qt.Equals, 3)
	c.Assert(f.dev.LiveCount(gpu.KindFence), qt.Equals, 3)
	f.draw()

	f.sc.SetImageCount(4)
	c.Assert(f.r.Rebuild(), qt.IsNil)
	c.Assert(f.dev.LiveCount(gpu.KindCommandBuffer), qt.Equals, 4)
	c.Assert(f.dev.LiveCount(gpu.KindFence), qt.Equals, 4)
	c.Assert(f.dev.LiveCount(gpu.KindFramebuffer), qt.Equals, 4+4)

	f.sc.Acquires = []gputest.Acquire{{Index: 3}}
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestFormatChangeRebuildsOnlyPresentObjects(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()

	oldComposite := f.pass("composite")
	oldLit := f.pass("scene").Pipeline
	oldBright := f.colorView("bright")

	f.sc.SetFormat(core1_0.FormatR8G8B8A8SRGB)
	c.Assert(f.r.Rebuild(), qt.IsNil)

	composite := f.pass("composite")
	c.Assert(composite.RenderPass, qt.Not(qt.Equals), oldComposite.RenderPass)
	c.Assert(composite.Pipeline, qt.Not(qt.Equals), oldComposite.Pipeline)
	c.Assert(f.dev.Live(oldComposite.RenderPass), qt.IsFalse)
	c.Assert(f.dev.RenderPass(composite.RenderPass).Color.Format, qt.Equals, core1_0.FormatR8G8B8A8SRGB)

	c.Assert(f.pass("scene").Pipeline, qt.Equals, oldLit)
	c.Assert(f.colorView("bright"), qt.Equals, oldBright)
	c.Assert(f.draw(), qt.Equals, renderer.FramePresented)
}

func TestCloseReleasesEverything(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 3)
	f.draw()
	f.draw()

	c.Assert(f.r.Close(), qt.IsNil)
	c.Assert(f.dev.Misuse(), qt.HasLen, 0)
	for kind, n := range liveCounts(f.dev) {
		want := 0
		if kind == gpu.KindImage || kind == gpu.KindImageView {
			// Swapchain images belong to the swapchain.
			want = 3
		}
		c.Assert(n, qt.Equals, want, qt.Commentf("%s", kind))
	}
}

func TestNewFailureReleasesEverything(t *testing.T) {
	for _, op := range []string{"CreateGraphicsPipeline", "AllocateDescriptorSets", "CreateFence", "QueueSubmit"} {
		t.Run(op, func(t *testing.T) {
			c := qt.New(t)
			dev := gputest.NewDevice()
			sc := gputest.NewSwapchain(dev, startFormat, startExtent, 2)
			log, _ := newLog()
			dev.FailNext(op)

			r, err := renderer.New(dev, sc, loadCar(c), shaderFS(), config.Default().Renderer, log)
			c.Assert(err, qt.ErrorMatches, `.*`+op+`\(\) returned VK_ERROR_OUT_OF_DEVICE_MEMORY`)
			c.Assert(r, qt.IsNil)
			c.Assert(dev.Misuse(), qt.HasLen, 0)
			for kind, n := range liveCounts(dev) {
				want := 0
				if kind == gpu.KindImage || kind == gpu.KindImageView {
					want = 2
				}
				c.Assert(n, qt.Equals, want, qt.Commentf("%s", kind))
			}
		})
	}
}

func TestMissingShaderIsReported(t *testing.T) {
	c := qt.New(t)
	dev := gputest.NewDevice()
	sc := gputest.NewSwapchain(dev, startFormat, startExtent, 2)
	log, _ := newLog()
	fsys := shaderFS()
	delete(fsys, config.Default().Renderer.Shaders.BlurVFrag)

	_, err := renderer.New(dev, sc, loadCar(c), fsys, config.Default().Renderer, log)
	c.Assert(err, qt.ErrorMatches, `read shader verticalFilter\.frag\.spv: .*`)
}

func TestDeviceErrorsCarryOperationAndStatus(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, 2)
	f.dev.FailNext("QueueSubmit")

	_, err := f.r.DrawFrame(f.state)
	var gpuErr *gpu.Error
	c.Assert(err, qt.ErrorAs, &gpuErr)
	c.Assert(gpuErr.Op, qt.Equals, "QueueSubmit")
	c.Assert(gpuErr.Status, qt.Equals, "VK_ERROR_OUT_OF_DEVICE_MEMORY")
}
