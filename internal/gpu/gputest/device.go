// Package gputest provides an in-memory recording implementation of the gpu
// interfaces. It tracks object lifetimes, descriptor contents, buffer bytes,
// recorded command streams and queue ordering, and it reports API misuse that
// a validation layer would catch.
package gputest

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

const (
	OpBeginRenderPass    = "BeginRenderPass"
	OpEndRenderPass      = "EndRenderPass"
	OpBindPipeline       = "BindPipeline"
	OpBindDescriptorSets = "BindDescriptorSets"
	OpBindVertexBuffers  = "BindVertexBuffers"
	OpDraw               = "Draw"
	OpPipelineBarrier    = "PipelineBarrier"
	OpUpdateBuffer       = "UpdateBuffer"
	OpCopyBuffer         = "CopyBuffer"
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op string

	RenderPass  gpu.RenderPass
	Framebuffer gpu.Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue

	Pipeline gpu.Pipeline
	Layout   gpu.PipelineLayout
	FirstSet int
	Sets     []gpu.DescriptorSet
	Buffers  []gpu.Buffer

	VertexCount   int
	InstanceCount int

	SrcStage core1_0.PipelineStageFlags
	DstStage core1_0.PipelineStageFlags
	Barriers []gpu.BufferBarrier

	Src    gpu.Buffer
	Dst    gpu.Buffer
	Offset int
	Data   []byte
	Size   int
}

const (
	EventSubmit    = "Submit"
	EventWait      = "WaitForFence"
	EventReset     = "ResetFence"
	EventWaitIdle  = "WaitIdle"
	EventAcquire   = "Acquire"
	EventPresent   = "Present"
	EventRecreate  = "Recreate"
	EventBeginCmds = "BeginCommandBuffer"
)

// Event is one entry in the host-side ordering log.
type Event struct {
	Op            string
	Fence         gpu.Fence
	CommandBuffer gpu.CommandBuffer
	Image         int
	Status        gpu.Status
}

// Submission is a snapshot of a queue submission.
type Submission struct {
	gpu.Submit
	Commands []Command
}

type bufferState struct {
	desc gpu.BufferDesc
	data []byte
}

type fenceState struct {
	signaled bool
	pending  bool
}

type stream struct {
	recording bool
	ended     bool
	inFlight  gpu.Fence
	commands  []Command
}

// Device is a recording gpu.Device. The zero value is not usable; call
// NewDevice.
type Device struct {
	next gpu.Handle
	live map[gpu.Handle]gpu.Kind
	// owned marks objects that belong to a Swapchain and must not be destroyed
	// through the device.
	owned map[gpu.Handle]bool

	renderPasses map[gpu.RenderPass]gpu.RenderPassDesc
	images       map[gpu.Image]gpu.ImageDesc
	views        map[gpu.ImageView]gpu.Image
	framebuffers map[gpu.Framebuffer]gpu.FramebufferDesc
	pipelines    map[gpu.Pipeline]gpu.PipelineDesc
	shaders      map[gpu.ShaderModule][]byte
	buffers      map[gpu.Buffer]*bufferState
	sets         map[gpu.DescriptorSet]map[int]gpu.DescriptorWrite
	setPools     map[gpu.DescriptorSet]gpu.DescriptorPool
	fences       map[gpu.Fence]*fenceState
	semaphores   map[gpu.Semaphore]bool
	streams      map[gpu.CommandBuffer]*stream

	failures map[string]bool
	misuse   []string

	Events      []Event
	Submissions []Submission
}

func NewDevice() *Device {
	return &Device{
		live:         make(map[gpu.Handle]gpu.Kind),
		owned:        make(map[gpu.Handle]bool),
		renderPasses: make(map[gpu.RenderPass]gpu.RenderPassDesc),
		images:       make(map[gpu.Image]gpu.ImageDesc),
		views:        make(map[gpu.ImageView]gpu.Image),
		framebuffers: make(map[gpu.Framebuffer]gpu.FramebufferDesc),
		pipelines:    make(map[gpu.Pipeline]gpu.PipelineDesc),
		shaders:      make(map[gpu.ShaderModule][]byte),
		buffers:      make(map[gpu.Buffer]*bufferState),
		sets:         make(map[gpu.DescriptorSet]map[int]gpu.DescriptorWrite),
		setPools:     make(map[gpu.DescriptorSet]gpu.DescriptorPool),
		fences:       make(map[gpu.Fence]*fenceState),
		semaphores:   make(map[gpu.Semaphore]bool),
		streams:      make(map[gpu.CommandBuffer]*stream),
		failures:     make(map[string]bool),
	}
}

var _ gpu.Device = (*Device)(nil)

// FailNext makes the next call of the named Device method fail with a
// *gpu.Error.
func (d *Device) FailNext(op string) {
	d.failures[op] = true
}

func (d *Device) fail(op string) error {
	if !d.failures[op] {
		return nil
	}
	delete(d.failures, op)
	return &gpu.Error{Op: op, Status: "VK_ERROR_OUT_OF_DEVICE_MEMORY"}
}

func (d *Device) misused(format string, args ...any) {
	d.misuse = append(d.misuse, fmt.Sprintf(format, args...))
}

// Misuse returns every API misuse observed so far.
func (d *Device) Misuse() []string {
	return d.misuse
}

func (d *Device) alloc(kind gpu.Kind) gpu.Handle {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) isLive(obj gpu.Object) bool {
	kind, ok := d.live[obj.Handle()]
	return ok && kind == obj.Kind()
}

// Live reports whether obj has been created and not yet destroyed.
func (d *Device) Live(obj gpu.Object) bool {
	return d.isLive(obj)
}

// LiveCount returns the number of live objects of a kind.
func (d *Device) LiveCount(kind gpu.Kind) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return 0, err
	}
	rp := gpu.RenderPass(d.alloc(gpu.KindRenderPass))
	d.renderPasses[rp] = desc
	return rp, nil
}

// RenderPass returns the description a render pass was created with.
func (d *Device) RenderPass(rp gpu.RenderPass) gpu.RenderPassDesc {
	return d.renderPasses[rp]
}

func (d *Device) CreateDescriptorSetLayout(bindings ...gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.alloc(gpu.KindDescriptorSetLayout)), nil
}

func (d *Device) CreatePipelineLayout(sets ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	for _, s := range sets {
		if !d.isLive(s) {
			d.misused("pipeline layout references dead set layout %d", s)
		}
	}
	return gpu.PipelineLayout(d.alloc(gpu.KindPipelineLayout)), nil
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, &gpu.Error{Op: "CreateShaderModule", Status: "VK_ERROR_INVALID_SHADER_NV"}
	}
	sm := gpu.ShaderModule(d.alloc(gpu.KindShaderModule))
	d.shaders[sm] = code
	return sm, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return 0, err
	}
	for _, obj := range []gpu.Object{desc.VertexShader, desc.FragmentShader, desc.Layout, desc.RenderPass} {
		if !d.isLive(obj) {
			d.misused("pipeline references dead %s %d", obj.Kind(), obj.Handle())
		}
	}
	p := gpu.Pipeline(d.alloc(gpu.KindPipeline))
	d.pipelines[p] = desc
	return p, nil
}

// Pipeline returns the description a pipeline was created with.
func (d *Device) Pipeline(p gpu.Pipeline) gpu.PipelineDesc {
	return d.pipelines[p]
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return 0, err
	}
	return gpu.Sampler(d.alloc(gpu.KindSampler)), nil
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if err := d.fail("CreateImage"); err != nil {
		return 0, err
	}
	if desc.Extent.Width <= 0 || desc.Extent.Height <= 0 {
		return 0, &gpu.Error{Op: "CreateImage", Status: "VK_ERROR_VALIDATION_FAILED_EXT"}
	}
	img := gpu.Image(d.alloc(gpu.KindImage))
	d.images[img] = desc
	return img, nil
}

// Image returns the description an image was created with.
func (d *Device) Image(img gpu.Image) gpu.ImageDesc {
	return d.images[img]
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return 0, err
	}
	if !d.isLive(image) {
		d.misused("view of dead image %d", image)
	}
	v := gpu.ImageView(d.alloc(gpu.KindImageView))
	d.views[v] = image
	return v, nil
}

// ViewImage returns the image behind a view.
func (d *Device) ViewImage(v gpu.ImageView) gpu.Image {
	return d.views[v]
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return 0, err
	}
	if !d.isLive(desc.RenderPass) {
		d.misused("framebuffer for dead render pass %d", desc.RenderPass)
	}
	for _, v := range desc.Attachments {
		if !d.isLive(v) {
			d.misused("framebuffer attachment is dead view %d", v)
		}
	}
	fb := gpu.Framebuffer(d.alloc(gpu.KindFramebuffer))
	d.framebuffers[fb] = desc
	return fb, nil
}

// Framebuffer returns the description a framebuffer was created with.
func (d *Device) Framebuffer(fb gpu.Framebuffer) gpu.FramebufferDesc {
	return d.framebuffers[fb]
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return 0, err
	}
	if desc.Size <= 0 {
		return 0, &gpu.Error{Op: "CreateBuffer", Status: "VK_ERROR_VALIDATION_FAILED_EXT"}
	}
	b := gpu.Buffer(d.alloc(gpu.KindBuffer))
	d.buffers[b] = &bufferState{desc: desc, data: make([]byte, desc.Size)}
	return b, nil
}

func (d *Device) WriteBuffer(buffer gpu.Buffer, offset int, data []byte) error {
	if err := d.fail("WriteBuffer"); err != nil {
		return err
	}
	state, ok := d.buffers[buffer]
	if !ok {
		return &gpu.Error{Op: "WriteBuffer", Status: "VK_ERROR_MEMORY_MAP_FAILED"}
	}
	if state.desc.Memory&core1_0.MemoryPropertyHostVisible == 0 {
		d.misused("host write to non host-visible buffer %d", buffer)
	}
	if offset+len(data) > len(state.data) {
		d.misused("host write past end of buffer %d", buffer)
		return nil
	}
	copy(state.data[offset:], data)
	return nil
}

// BufferData returns the current contents of a buffer as seen by the GPU.
func (d *Device) BufferData(b gpu.Buffer) []byte {
	if state, ok := d.buffers[b]; ok {
		return state.data
	}
	return nil
}

// BufferDesc returns the description a buffer was created with.
func (d *Device) BufferDesc(b gpu.Buffer) gpu.BufferDesc {
	if state, ok := d.buffers[b]; ok {
		return state.desc
	}
	return gpu.BufferDesc{}
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.alloc(gpu.KindDescriptorPool)), nil
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	if err := d.fail("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	if !d.isLive(pool) {
		d.misused("allocation from dead pool %d", pool)
	}
	sets := make([]gpu.DescriptorSet, 0, len(layouts))
	for range layouts {
		s := gpu.DescriptorSet(d.alloc(gpu.KindDescriptorSet))
		d.sets[s] = make(map[int]gpu.DescriptorWrite)
		d.setPools[s] = pool
		sets = append(sets, s)
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) error {
	if err := d.fail("UpdateDescriptorSets"); err != nil {
		return err
	}
	for _, w := range writes {
		bindings, ok := d.sets[w.Set]
		if !ok {
			d.misused("update of dead descriptor set %d", w.Set)
			continue
		}
		switch w.Type {
		case core1_0.DescriptorTypeUniformBuffer:
			if !d.isLive(w.Buffer) {
				d.misused("descriptor set %d points at dead buffer %d", w.Set, w.Buffer)
			}
		case core1_0.DescriptorTypeCombinedImageSampler:
			if !d.isLive(w.ImageView) || !d.isLive(w.Sampler) {
				d.misused("descriptor set %d points at dead view %d or sampler %d", w.Set, w.ImageView, w.Sampler)
			}
		}
		bindings[w.Binding] = w
	}
	return nil
}

// Descriptor returns the last write applied to a binding of a set.
func (d *Device) Descriptor(set gpu.DescriptorSet, binding int) (gpu.DescriptorWrite, bool) {
	w, ok := d.sets[set][binding]
	return w, ok
}

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	cbs := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		cb := gpu.CommandBuffer(d.alloc(gpu.KindCommandBuffer))
		d.streams[cb] = &stream{}
		cbs = append(cbs, cb)
	}
	return cbs, nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return 0, err
	}
	f := gpu.Fence(d.alloc(gpu.KindFence))
	d.fences[f] = &fenceState{signaled: signaled}
	return f, nil
}

// FenceSignaled reports whether a fence is currently signaled.
func (d *Device) FenceSignaled(f gpu.Fence) bool {
	if state, ok := d.fences[f]; ok {
		return state.signaled
	}
	return false
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return 0, err
	}
	s := gpu.Semaphore(d.alloc(gpu.KindSemaphore))
	d.semaphores[s] = false
	return s, nil
}

// SemaphoreSignaled reports whether a binary semaphore has a pending signal.
func (d *Device) SemaphoreSignaled(s gpu.Semaphore) bool {
	return d.semaphores[s]
}

func (d *Device) signal(s gpu.Semaphore, by string) error {
	signaled, ok := d.semaphores[s]
	if !ok {
		return &gpu.Error{Op: by, Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("semaphore %d is not live", s)}
	}
	if signaled {
		return &gpu.Error{Op: by, Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("semaphore %d already has a pending signal", s)}
	}
	d.semaphores[s] = true
	return nil
}

func (d *Device) consume(s gpu.Semaphore, by string) error {
	if !d.semaphores[s] {
		return &gpu.Error{Op: by, Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("wait on semaphore %d that has no pending signal", s)}
	}
	d.semaphores[s] = false
	return nil
}

func (d *Device) Destroy(objects ...gpu.Object) {
	for _, obj := range objects {
		h := obj.Handle()
		if h == 0 {
			continue
		}
		if !d.isLive(obj) {
			d.misused("destroy of dead %s %d", obj.Kind(), h)
			continue
		}
		if d.owned[h] {
			d.misused("destroy of swapchain-owned %s %d", obj.Kind(), h)
			continue
		}
		if d.inFlight(obj) {
			d.misused("destroy of in-flight %s %d", obj.Kind(), h)
		}
		d.release(obj)
	}
}

func (d *Device) pending(f gpu.Fence) bool {
	state, ok := d.fences[f]
	return ok && state.pending
}

// inFlight reports whether obj is used by a submission that has not been
// waited on.
func (d *Device) inFlight(obj gpu.Object) bool {
	switch o := obj.(type) {
	case gpu.Fence:
		return d.pending(o)
	case gpu.CommandBuffer:
		s, ok := d.streams[o]
		return ok && d.pending(s.inFlight)
	case gpu.Buffer:
		for _, s := range d.streams {
			if !d.pending(s.inFlight) {
				continue
			}
			for _, cmd := range s.commands {
				if cmd.Src == o || cmd.Dst == o {
					return true
				}
				for _, b := range cmd.Buffers {
					if b == o {
						return true
					}
				}
			}
		}
	}
	return false
}

func (d *Device) release(obj gpu.Object) {
	h := obj.Handle()
	delete(d.live, h)
	delete(d.owned, h)

	switch o := obj.(type) {
	case gpu.RenderPass:
		delete(d.renderPasses, o)
	case gpu.Image:
		delete(d.images, o)
	case gpu.ImageView:
		delete(d.views, o)
	case gpu.Framebuffer:
		delete(d.framebuffers, o)
	case gpu.Pipeline:
		delete(d.pipelines, o)
	case gpu.ShaderModule:
		delete(d.shaders, o)
	case gpu.Buffer:
		delete(d.buffers, o)
	case gpu.DescriptorSet:
		delete(d.sets, o)
		delete(d.setPools, o)
	case gpu.DescriptorPool:
		for set, pool := range d.setPools {
			if pool == o {
				d.release(set)
			}
		}
	case gpu.Fence:
		if state := d.fences[o]; state != nil && state.pending {
			d.misused("destroy of in-flight fence %d", o)
		}
		delete(d.fences, o)
	case gpu.Semaphore:
		delete(d.semaphores, o)
	case gpu.CommandBuffer:
		delete(d.streams, o)
	}
}
