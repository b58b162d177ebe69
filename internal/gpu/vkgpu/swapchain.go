package vkgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

type swapchainSupport struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

func (b *Backend) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var support swapchainSupport
	var res common.VkResult
	var err error

	support.capabilities, res, err = b.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(b.surface, device)
	if err != nil {
		return support, failure("GetPhysicalDeviceSurfaceCapabilities", res, err)
	}
	support.formats, res, err = b.surfaceExtension.GetPhysicalDeviceSurfaceFormats(b.surface, device)
	if err != nil {
		return support, failure("GetPhysicalDeviceSurfaceFormats", res, err)
	}
	support.presentModes, res, err = b.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(b.surface, device)
	if err != nil {
		return support, failure("GetPhysicalDeviceSurfacePresentModes", res, err)
	}
	return support, nil
}

func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return available[0]
}

func choosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range available {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}
	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's extent when it has one, otherwise the
// drawable size clamped to what the surface allows.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}
	return core1_0.Extent2D{
		Width:  clamp(drawableWidth, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(drawableHeight, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < count {
		count = capabilities.MaxImageCount
	}
	return count
}

// Swapchain presents to the backend's window surface. It implements
// gpu.Swapchain; its image views are registered with the backend so they can
// be used as framebuffer attachments, but they are destroyed only by the
// swapchain.
type Swapchain struct {
	b   *Backend
	log *logrus.Entry

	handle khr_swapchain.Swapchain
	format core1_0.Format
	extent core1_0.Extent2D
	views  []gpu.ImageView
}

var _ gpu.Swapchain = (*Swapchain)(nil)

func (b *Backend) NewSwapchain() (*Swapchain, error) {
	s := &Swapchain{b: b, log: b.log}
	if err := s.build(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) build() error {
	b := s.b
	support, err := b.querySwapchainSupport(b.physicalDevice)
	if err != nil {
		return err
	}
	if len(support.formats) == 0 {
		return errors.New("surface reports no formats")
	}

	surfaceFormat := chooseSurfaceFormat(support.formats)
	extent := s.surfaceExtent(support.capabilities)
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Newf("surface has no area (%dx%d)", extent.Width, extent.Height)
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if b.families.graphics != b.families.present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{b.families.graphics, b.families.present}
	}

	handle, res, err := b.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: b.surface,

		MinImageCount:    chooseImageCount(support.capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    choosePresentMode(support.presentModes),
		Clipped:        true,
	})
	if err != nil {
		return failure("CreateSwapchain", res, err)
	}
	s.handle = handle
	s.format = surfaceFormat.Format
	s.extent = extent

	images, res, err := b.swapchainExtension.GetSwapchainImages(handle)
	if err != nil {
		return failure("GetSwapchainImages", res, err)
	}
	for _, img := range images {
		view, err := b.createImageView(img, s.format, core1_0.ImageAspectColor)
		if err != nil {
			return err
		}
		s.views = append(s.views, gpu.ImageView(b.imageViews.add(view)))
	}

	s.log.WithFields(logrus.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"images": len(images),
		"format": s.format,
	}).Debug("Swapchain created")
	return nil
}

func (s *Swapchain) release() {
	s.b.Destroy(viewObjects(s.views)...)
	s.views = nil
	if s.handle.Initialized() {
		s.b.swapchainExtension.DestroySwapchain(s.handle, nil)
		s.handle = khr_swapchain.Swapchain{}
	}
}

func viewObjects(views []gpu.ImageView) []gpu.Object {
	out := make([]gpu.Object, len(views))
	for i, v := range views {
		out[i] = v
	}
	return out
}

func (s *Swapchain) surfaceExtent(capabilities *khr_surface.SurfaceCapabilities) core1_0.Extent2D {
	if s.b.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return core1_0.Extent2D{}
	}
	width, height := s.b.window.VulkanGetDrawableSize()
	return chooseExtent(capabilities, int(width), int(height))
}

func (s *Swapchain) SurfaceExtent() (core1_0.Extent2D, error) {
	capabilities, res, err := s.b.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(s.b.surface, s.b.physicalDevice)
	if err != nil {
		return core1_0.Extent2D{}, failure("GetPhysicalDeviceSurfaceCapabilities", res, err)
	}
	return s.surfaceExtent(capabilities), nil
}

func (s *Swapchain) Format() core1_0.Format      { return s.format }
func (s *Swapchain) Extent() core1_0.Extent2D    { return s.extent }
func (s *Swapchain) ImageViews() []gpu.ImageView { return s.views }

// Recreate replaces the swapchain and its views for the surface's current
// size. The caller must have drained the device and destroyed every
// framebuffer that uses the old views.
func (s *Swapchain) Recreate() (gpu.SwapchainChanges, error) {
	oldFormat, oldExtent := s.format, s.extent
	s.release()
	if err := s.build(); err != nil {
		return gpu.SwapchainChanges{}, err
	}
	return gpu.SwapchainChanges{
		FormatChanged: s.format != oldFormat,
		ExtentChanged: s.extent != oldExtent,
	}, nil
}

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.Status, error) {
	sem, ok := s.b.semaphores.get(signal.Handle())
	if !ok {
		return 0, gpu.StatusSuccess, missing("AcquireNextImage", signal)
	}
	index, res, err := s.b.swapchainExtension.AcquireNextImage(s.handle, common.NoTimeout, &sem, nil)
	if status, stale := staleness(res); stale {
		return index, status, nil
	}
	if err != nil {
		return 0, gpu.StatusSuccess, failure("AcquireNextImage", res, err)
	}
	return index, gpu.StatusSuccess, nil
}

func (s *Swapchain) Present(wait gpu.Semaphore, imageIndex int) (gpu.Status, error) {
	sem, ok := s.b.semaphores.get(wait.Handle())
	if !ok {
		return gpu.StatusSuccess, missing("QueuePresent", wait)
	}
	res, err := s.b.swapchainExtension.QueuePresent(s.b.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{sem},
		Swapchains:     []khr_swapchain.Swapchain{s.handle},
		ImageIndices:   []int{imageIndex},
	})
	if status, stale := staleness(res); stale {
		return status, nil
	}
	if err != nil {
		return gpu.StatusSuccess, failure("QueuePresent", res, err)
	}
	return gpu.StatusSuccess, nil
}

func staleness(res common.VkResult) (gpu.Status, bool) {
	switch res {
	case khr_swapchain.VKSuboptimal:
		return gpu.StatusSuboptimal, true
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.StatusOutOfDate, true
	}
	return gpu.StatusSuccess, false
}

// Close destroys the views and the swapchain. The device must be idle.
func (s *Swapchain) Close() {
	s.release()
}
