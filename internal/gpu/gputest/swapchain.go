package gputest

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

// Acquire scripts the result of one AcquireNextImage call.
type Acquire struct {
	Index  int
	Status gpu.Status
	Err    error
}

// Swapchain is a scriptable gpu.Swapchain whose images live on a Device.
type Swapchain struct {
	dev *Device

	format     core1_0.Format
	extent     core1_0.Extent2D
	imageCount int

	wantFormat     core1_0.Format
	wantExtent     core1_0.Extent2D
	wantImageCount int

	images []gpu.Image
	views  []gpu.ImageView
	cursor int

	// Acquires and Presents are consumed in order; when empty, acquires hand
	// out images round-robin and presents succeed.
	Acquires []Acquire
	Presents []gpu.Status

	Recreations int
}

var _ gpu.Swapchain = (*Swapchain)(nil)

func NewSwapchain(dev *Device, format core1_0.Format, extent core1_0.Extent2D, imageCount int) *Swapchain {
	s := &Swapchain{
		dev:            dev,
		wantFormat:     format,
		wantExtent:     extent,
		wantImageCount: imageCount,
	}
	s.build()
	return s
}

func (s *Swapchain) build() {
	s.format = s.wantFormat
	s.extent = s.wantExtent
	s.imageCount = s.wantImageCount
	s.images = s.images[:0]
	s.views = s.views[:0]
	for i := 0; i < s.imageCount; i++ {
		img := gpu.Image(s.dev.alloc(gpu.KindImage))
		s.dev.images[img] = gpu.ImageDesc{Format: s.format, Extent: s.extent, Usage: core1_0.ImageUsageColorAttachment}
		view := gpu.ImageView(s.dev.alloc(gpu.KindImageView))
		s.dev.views[view] = img
		s.dev.owned[gpu.Handle(img)] = true
		s.dev.owned[gpu.Handle(view)] = true
		s.images = append(s.images, img)
		s.views = append(s.views, view)
	}
	s.cursor = 0
}

// Resize makes the next Recreate report a new extent.
func (s *Swapchain) Resize(extent core1_0.Extent2D) {
	s.wantExtent = extent
}

// SetFormat makes the next Recreate report a new surface format.
func (s *Swapchain) SetFormat(format core1_0.Format) {
	s.wantFormat = format
}

// SetImageCount makes the next Recreate produce a different number of images.
func (s *Swapchain) SetImageCount(n int) {
	s.wantImageCount = n
}

func (s *Swapchain) Format() core1_0.Format   { return s.format }
func (s *Swapchain) Extent() core1_0.Extent2D { return s.extent }

func (s *Swapchain) SurfaceExtent() (core1_0.Extent2D, error) { return s.wantExtent, nil }

func (s *Swapchain) ImageViews() []gpu.ImageView {
	views := make([]gpu.ImageView, len(s.views))
	copy(views, s.views)
	return views
}

func (s *Swapchain) Recreate() (gpu.SwapchainChanges, error) {
	if s.dev.Busy() {
		return gpu.SwapchainChanges{}, &gpu.Error{Op: "CreateSwapchain", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("swapchain recreated while work is in flight")}
	}
	if s.wantExtent.Width <= 0 || s.wantExtent.Height <= 0 {
		return gpu.SwapchainChanges{}, &gpu.Error{Op: "CreateSwapchain", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("zero extent %dx%d", s.wantExtent.Width, s.wantExtent.Height)}
	}
	changes := gpu.SwapchainChanges{
		FormatChanged: s.wantFormat != s.format,
		ExtentChanged: s.wantExtent != s.extent,
	}
	for i := range s.views {
		s.dev.release(s.views[i])
		s.dev.release(s.images[i])
	}
	s.build()
	s.Recreations++
	s.dev.Events = append(s.dev.Events, Event{Op: EventRecreate})
	return changes, nil
}

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.Status, error) {
	var result Acquire
	if len(s.Acquires) > 0 {
		result = s.Acquires[0]
		s.Acquires = s.Acquires[1:]
	} else {
		result = Acquire{Index: s.cursor}
		s.cursor = (s.cursor + 1) % s.imageCount
	}
	if result.Err != nil {
		return 0, gpu.StatusSuccess, result.Err
	}
	if result.Status != gpu.StatusOutOfDate {
		if err := s.dev.signal(signal, "AcquireNextImage"); err != nil {
			return 0, gpu.StatusSuccess, err
		}
	}
	s.dev.Events = append(s.dev.Events, Event{Op: EventAcquire, Image: result.Index, Status: result.Status})
	return result.Index, result.Status, nil
}

func (s *Swapchain) Present(wait gpu.Semaphore, imageIndex int) (gpu.Status, error) {
	if imageIndex < 0 || imageIndex >= len(s.views) {
		return gpu.StatusSuccess, &gpu.Error{Op: "QueuePresent", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("image index %d out of range", imageIndex)}
	}
	if err := s.dev.consume(wait, "QueuePresent"); err != nil {
		return gpu.StatusSuccess, err
	}
	status := gpu.StatusSuccess
	if len(s.Presents) > 0 {
		status = s.Presents[0]
		s.Presents = s.Presents[1:]
	}
	s.dev.Events = append(s.dev.Events, Event{Op: EventPresent, Image: imageIndex, Status: status})
	return status, nil
}
