// Package vkgpu implements the gpu interfaces on Vulkan through vkngwrapper,
// with an SDL2 window as the presentation surface.
package vkgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	AppName    string
	Validation bool
}

type buffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

type image struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
}

type descriptorSet struct {
	set  core1_0.DescriptorSet
	pool gpu.Handle
}

// Backend owns the instance, the logical device and every object created
// through it. It implements gpu.Device.
type Backend struct {
	log    *logrus.Entry
	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	families       queueFamilies
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
	commandPool    core1_0.CommandPool

	next            gpu.Handle
	buffers         registry[buffer]
	images          registry[image]
	imageViews      registry[core1_0.ImageView]
	framebuffers    registry[core1_0.Framebuffer]
	renderPasses    registry[core1_0.RenderPass]
	pipelines       registry[core1_0.Pipeline]
	pipelineLayouts registry[core1_0.PipelineLayout]
	setLayouts      registry[core1_0.DescriptorSetLayout]
	pools           registry[core1_0.DescriptorPool]
	sets            registry[descriptorSet]
	samplers        registry[core1_0.Sampler]
	shaders         registry[core1_0.ShaderModule]
	commandBuffers  registry[core1_0.CommandBuffer]
	fences          registry[core1_0.Fence]
	semaphores      registry[core1_0.Semaphore]
}

var _ gpu.Device = (*Backend)(nil)

// New creates a Vulkan instance for window, picks the first device that can
// present to it and creates a logical device with one graphics queue. On
// failure everything created so far is released.
func New(window *sdl.Window, opts Options, log *logrus.Entry) (*Backend, error) {
	b := &Backend{log: log, window: window}
	b.buffers = newRegistry[buffer](&b.next)
	b.images = newRegistry[image](&b.next)
	b.imageViews = newRegistry[core1_0.ImageView](&b.next)
	b.framebuffers = newRegistry[core1_0.Framebuffer](&b.next)
	b.renderPasses = newRegistry[core1_0.RenderPass](&b.next)
	b.pipelines = newRegistry[core1_0.Pipeline](&b.next)
	b.pipelineLayouts = newRegistry[core1_0.PipelineLayout](&b.next)
	b.setLayouts = newRegistry[core1_0.DescriptorSetLayout](&b.next)
	b.pools = newRegistry[core1_0.DescriptorPool](&b.next)
	b.sets = newRegistry[descriptorSet](&b.next)
	b.samplers = newRegistry[core1_0.Sampler](&b.next)
	b.shaders = newRegistry[core1_0.ShaderModule](&b.next)
	b.commandBuffers = newRegistry[core1_0.CommandBuffer](&b.next)
	b.fences = newRegistry[core1_0.Fence](&b.next)
	b.semaphores = newRegistry[core1_0.Semaphore](&b.next)

	steps := []func() error{
		b.createDriver,
		func() error { return b.createInstance(opts) },
		func() error { return b.setupDebugMessenger(opts) },
		b.createSurface,
		b.pickPhysicalDevice,
		b.createLogicalDevice,
		b.createCommandPool,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) createDriver() error {
	var err error
	b.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return errors.Wrap(err, "load vulkan driver")
}

func (b *Backend) createInstance(opts Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "bloom",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := b.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "list instance extensions")
	}
	for _, ext := range b.window.VulkanGetInstanceExtensions() {
		if _, ok := extensions[ext]; !ok {
			return errors.Newf("missing instance extension %s required by sdl", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}
	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := b.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "list instance layers")
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.Newf("validation layer %s not available", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.Next = b.debugMessengerOptions()
	}

	var res common.VkResult
	b.instanceDriver, res, err = b.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return failure("CreateInstance", res, err)
	}
	return nil
}

func (b *Backend) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    b.logDebug,
	}
}

func (b *Backend) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := b.log.WithField("type", msgType.String())
	if severity&ext_debug_utils.SeverityError != 0 {
		entry.Error(data.Message)
	} else {
		entry.Warn(data.Message)
	}
	return false
}

func (b *Backend) setupDebugMessenger(opts Options) error {
	if !opts.Validation {
		return nil
	}
	b.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(b.instanceDriver)
	var res common.VkResult
	var err error
	b.debugMessenger, res, err = b.debugDriver.CreateDebugUtilsMessenger(nil, b.debugMessengerOptions())
	if err != nil {
		return failure("CreateDebugUtilsMessenger", res, err)
	}
	return nil
}

func (b *Backend) createSurface() error {
	b.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(b.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(b.instanceDriver.Instance(), b.surfaceExtension, b.window)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}
	b.surface = surface
	return nil
}

func (b *Backend) pickPhysicalDevice() error {
	physicalDevices, res, err := b.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return failure("EnumeratePhysicalDevices", res, err)
	}

	for _, device := range physicalDevices {
		families, ok := b.suitable(device)
		if !ok {
			continue
		}
		b.physicalDevice = device
		b.families = families

		props, err := b.instanceDriver.GetPhysicalDeviceProperties(device)
		if err == nil {
			b.log.WithFields(logrus.Fields{
				"device":   props.DeviceName,
				"graphics": families.graphics,
				"present":  families.present,
			}).Info("Picked physical device")
		}
		return nil
	}
	return errors.New("no device can render to the window surface")
}

func (b *Backend) suitable(device core1_0.PhysicalDevice) (queueFamilies, bool) {
	families, err := b.findQueueFamilies(device)
	if err != nil || !families.complete() {
		return families, false
	}

	extensions, _, err := b.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return families, false
	}
	for _, extension := range deviceExtensions {
		if _, ok := extensions[extension]; !ok {
			return families, false
		}
	}

	support, err := b.querySwapchainSupport(device)
	if err != nil {
		return families, false
	}
	return families, len(support.formats) > 0 && len(support.presentModes) > 0
}

type queueFamilies struct {
	graphics, present int
}

func (f queueFamilies) complete() bool {
	return f.graphics >= 0 && f.present >= 0
}

func (b *Backend) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	families := queueFamilies{graphics: -1, present: -1}
	for idx, family := range b.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device) {
		if family.QueueFlags&core1_0.QueueGraphics != 0 && families.graphics < 0 {
			families.graphics = idx
		}

		supported, res, err := b.surfaceExtension.GetPhysicalDeviceSurfaceSupport(b.surface, device, idx)
		if err != nil {
			return families, failure("GetPhysicalDeviceSurfaceSupport", res, err)
		}
		if supported && families.present < 0 {
			families.present = idx
		}

		if families.complete() {
			break
		}
	}
	return families, nil
}

func (b *Backend) createLogicalDevice() error {
	unique := []int{b.families.graphics}
	if b.families.present != b.families.graphics {
		unique = append(unique, b.families.present)
	}

	var queueOptions []core1_0.DeviceQueueCreateInfo
	for _, family := range unique {
		queueOptions = append(queueOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)
	extensions, res, err := b.instanceDriver.EnumerateDeviceExtensionProperties(b.physicalDevice)
	if err != nil {
		return failure("EnumerateDeviceExtensionProperties", res, err)
	}
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	b.deviceDriver, res, err = b.instanceDriver.CreateDevice(b.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return failure("CreateDevice", res, err)
	}

	b.graphicsQueue = b.deviceDriver.GetQueue(b.families.graphics, 0)
	b.presentQueue = b.deviceDriver.GetQueue(b.families.present, 0)
	b.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(b.deviceDriver)
	return nil
}

func (b *Backend) createCommandPool() error {
	pool, res, err := b.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: b.families.graphics,
	})
	if err != nil {
		return failure("CreateCommandPool", res, err)
	}
	b.commandPool = pool
	return nil
}

// Close destroys whatever the renderer left alive, then the device, the
// surface and the instance. Swapchains must be closed first.
func (b *Backend) Close() {
	if b.deviceDriver != nil {
		if _, err := b.deviceDriver.DeviceWaitIdle(); err != nil {
			b.log.WithError(err).Warn("Device did not go idle before teardown")
		}
		if leaked := b.liveObjects(); len(leaked) > 0 {
			b.log.WithField("objects", len(leaked)).Warn("Objects still alive at teardown")
			b.Destroy(leaked...)
		}
		if b.commandPool.Initialized() {
			b.deviceDriver.DestroyCommandPool(b.commandPool, nil)
		}
		b.deviceDriver.DestroyDevice(nil)
		b.deviceDriver = nil
	}
	if b.debugMessenger.Initialized() {
		b.debugDriver.DestroyDebugUtilsMessenger(b.debugMessenger, nil)
	}
	if b.surface.Initialized() {
		b.surfaceExtension.DestroySurface(b.surface, nil)
	}
	if b.instanceDriver != nil {
		b.instanceDriver.DestroyInstance(nil)
		b.instanceDriver = nil
	}
}

// liveObjects lists dependents before what they depend on, so a single
// Destroy call can release them.
func (b *Backend) liveObjects() []gpu.Object {
	var out []gpu.Object
	for _, h := range b.commandBuffers.handles() {
		out = append(out, gpu.CommandBuffer(h))
	}
	for _, h := range b.fences.handles() {
		out = append(out, gpu.Fence(h))
	}
	for _, h := range b.semaphores.handles() {
		out = append(out, gpu.Semaphore(h))
	}
	for _, h := range b.framebuffers.handles() {
		out = append(out, gpu.Framebuffer(h))
	}
	for _, h := range b.pipelines.handles() {
		out = append(out, gpu.Pipeline(h))
	}
	for _, h := range b.imageViews.handles() {
		out = append(out, gpu.ImageView(h))
	}
	for _, h := range b.images.handles() {
		out = append(out, gpu.Image(h))
	}
	for _, h := range b.pools.handles() {
		out = append(out, gpu.DescriptorPool(h))
	}
	for _, h := range b.buffers.handles() {
		out = append(out, gpu.Buffer(h))
	}
	for _, h := range b.shaders.handles() {
		out = append(out, gpu.ShaderModule(h))
	}
	for _, h := range b.samplers.handles() {
		out = append(out, gpu.Sampler(h))
	}
	for _, h := range b.renderPasses.handles() {
		out = append(out, gpu.RenderPass(h))
	}
	for _, h := range b.pipelineLayouts.handles() {
		out = append(out, gpu.PipelineLayout(h))
	}
	for _, h := range b.setLayouts.handles() {
		out = append(out, gpu.DescriptorSetLayout(h))
	}
	return out
}
