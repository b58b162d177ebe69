package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/input"
)

// FrameOutcome says what DrawFrame did.
type FrameOutcome int

const (
	// FramePresented means a frame was submitted and presented.
	FramePresented FrameOutcome = iota
	// FrameSkipped means nothing was submitted because the swapchain had to
	// be rebuilt first.
	FrameSkipped
)

func (o FrameOutcome) String() string {
	switch o {
	case FramePresented:
		return "presented"
	case FrameSkipped:
		return "skipped"
	}
	return "unknown"
}

// frameSlot is the per-swapchain-image command buffer and the fence that
// guards it.
type frameSlot struct {
	cb    gpu.CommandBuffer
	fence gpu.Fence
}

func (r *Renderer) createSlots(n int) error {
	cbs, err := r.dev.AllocateCommandBuffers(n)
	if err != nil {
		return errors.Wrap(err, "allocate frame command buffers")
	}
	r.slots = make([]frameSlot, len(cbs))
	for i, cb := range cbs {
		r.slots[i].cb = cb
	}
	for i := range r.slots {
		// Signaled so the first wait on every slot returns immediately.
		if r.slots[i].fence, err = r.dev.CreateFence(true); err != nil {
			return errors.Wrapf(err, "create frame fence %d", i)
		}
	}
	return nil
}

func (r *Renderer) destroySlots() {
	for _, s := range r.slots {
		r.dev.Destroy(s.cb, s.fence)
	}
	r.slots = nil
}

func (r *Renderer) createSemaphores() error {
	var err error
	if r.imageAvailable, err = r.dev.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create image-available semaphore")
	}
	if r.renderFinished, err = r.dev.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create render-finished semaphore")
	}
	return nil
}

// NotifyResized makes the next DrawFrame rebuild the swapchain instead of
// drawing.
func (r *Renderer) NotifyResized() {
	r.resized = true
}

// DrawFrame acquires a swapchain image, records and submits the frame for it
// and presents it. A stale swapchain is rebuilt; when that happens before
// submission the frame is abandoned and FrameSkipped is returned. Errors are
// fatal.
func (r *Renderer) DrawFrame(state *input.State) (FrameOutcome, error) {
	if r.resized {
		r.log.Debug("Window resized, rebuilding swapchain")
		return FrameSkipped, r.Rebuild()
	}

	imageIndex, status, err := r.swapchain.AcquireNextImage(r.imageAvailable)
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "acquire swapchain image")
	}
	if status.Stale() {
		r.log.WithField("status", status).Debug("Swapchain stale on acquire")
		return FrameSkipped, r.Rebuild()
	}
	if imageIndex < 0 || imageIndex >= len(r.slots) {
		return FrameSkipped, errors.AssertionFailedf("acquired image %d with %d frame slots", imageIndex, len(r.slots))
	}

	slot := r.slots[imageIndex]
	if err := r.dev.WaitForFence(slot.fence); err != nil {
		return FrameSkipped, errors.Wrapf(err, "wait for frame %d", imageIndex)
	}
	if err := r.dev.ResetFence(slot.fence); err != nil {
		return FrameSkipped, errors.Wrapf(err, "reset frame %d fence", imageIndex)
	}

	if err := r.recordFrame(slot.cb, imageIndex, state); err != nil {
		return FrameSkipped, err
	}

	err = r.dev.QueueSubmit(gpu.Submit{
		CommandBuffer: slot.cb,
		Wait:          r.imageAvailable,
		WaitStage:     core1_0.PipelineStageColorAttachmentOutput,
		Signal:        r.renderFinished,
		Fence:         slot.fence,
	})
	if err != nil {
		return FrameSkipped, errors.Wrapf(err, "submit frame %d", imageIndex)
	}

	status, err = r.swapchain.Present(r.renderFinished, imageIndex)
	if err != nil {
		return FramePresented, errors.Wrapf(err, "present image %d", imageIndex)
	}
	r.stats.frame()

	if status.Stale() {
		r.log.WithField("status", status).Debug("Swapchain stale on present")
		return FramePresented, r.Rebuild()
	}
	return FramePresented, nil
}
