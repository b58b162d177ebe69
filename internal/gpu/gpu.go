// Package gpu defines the slice of an explicit graphics API that the bloom
// renderer is written against. Enum and flag values are the vkngwrapper core1_0
// types so that descriptions pass through the Vulkan backend unchanged, while
// object identity is carried by the typed handles in this package. That keeps
// the renderer testable against the recording fake in gputest.
package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// AttachmentDesc describes one attachment of a single-subpass render pass.
type AttachmentDesc struct {
	Format        core1_0.Format
	LoadOp        core1_0.AttachmentLoadOp
	StoreOp       core1_0.AttachmentStoreOp
	InitialLayout core1_0.ImageLayout
	FinalLayout   core1_0.ImageLayout
}

// RenderPassDesc is a single-subpass render pass with one color attachment
// and an optional depth attachment.
type RenderPassDesc struct {
	Color        AttachmentDesc
	Depth        *AttachmentDesc
	Dependencies []core1_0.SubpassDependency
}

type DescriptorBinding struct {
	Binding int
	Type    core1_0.DescriptorType
	Stages  core1_0.ShaderStageFlags
}

// PipelineDesc describes a graphics pipeline with viewport and scissor baked
// to Extent.
type PipelineDesc struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription

	Extent    core1_0.Extent2D
	CullMode  core1_0.CullModeFlags
	DepthTest bool

	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    int
}

type SamplerDesc struct {
	Filter      core1_0.Filter
	AddressMode core1_0.SamplerAddressMode
}

type ImageDesc struct {
	Format core1_0.Format
	Extent core1_0.Extent2D
	Usage  core1_0.ImageUsageFlags
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      core1_0.Extent2D
}

type BufferDesc struct {
	Size   int
	Usage  core1_0.BufferUsageFlags
	Memory core1_0.MemoryPropertyFlags
}

// DescriptorWrite points one binding of a descriptor set at either a buffer
// range or a sampled image view.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType

	Buffer Buffer
	Range  int

	ImageView ImageView
	Sampler   Sampler
	Layout    core1_0.ImageLayout
}

// BufferBarrier covers the whole buffer when Size is zero.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	Offset    int
	Size      int
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

// Submit is one queue submission of a single command buffer. Zero-valued
// semaphores and fences are omitted.
type Submit struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     core1_0.PipelineStageFlags
	Signal        Semaphore
	Fence         Fence
}

// Device creates and destroys GPU objects. Every creation call is fallible;
// failures are reported as *Error values.
type Device interface {
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	CreateDescriptorSetLayout(bindings ...DescriptorBinding) (DescriptorSetLayout, error)
	CreatePipelineLayout(sets ...DescriptorSetLayout) (PipelineLayout, error)
	CreateShaderModule(code []byte) (ShaderModule, error)
	CreateGraphicsPipeline(desc PipelineDesc) (Pipeline, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateImageView(image Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (ImageView, error)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	// WriteBuffer copies data into a host-visible buffer.
	WriteBuffer(buffer Buffer, offset int, data []byte) error
	CreateDescriptorPool(maxSets int, sizes ...core1_0.DescriptorPoolSize) (DescriptorPool, error)
	AllocateDescriptorSets(pool DescriptorPool, layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes ...DescriptorWrite) error
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)

	// Destroy releases objects. Zero handles are skipped.
	Destroy(objects ...Object)

	Recorder
	Queue
}

// Recorder records commands into a command buffer.
type Recorder interface {
	BeginCommandBuffer(cb CommandBuffer, flags core1_0.CommandBufferUsageFlags) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdPipelineBarrier(cb CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...BufferBarrier) error
	CmdUpdateBuffer(cb CommandBuffer, buffer Buffer, offset int, data []byte) error
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size int) error
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin) error
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, firstSet int, sets ...DescriptorSet)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding int, buffers ...Buffer)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int)
}

// Queue submits recorded work and waits on it. All waits are unbounded.
type Queue interface {
	QueueSubmit(submit Submit) error
	WaitForFence(fence Fence) error
	ResetFence(fence Fence) error
	WaitIdle() error
}

// SwapchainChanges reports which properties of the presentable images moved
// during a Recreate.
type SwapchainChanges struct {
	FormatChanged bool
	ExtentChanged bool
}

// Swapchain is the presentation boundary. Stale swapchains are reported
// through Status values; only real failures are errors.
type Swapchain interface {
	Format() core1_0.Format
	Extent() core1_0.Extent2D
	// SurfaceExtent is the extent a Recreate would produce now. It is zero
	// while the window has no area.
	SurfaceExtent() (core1_0.Extent2D, error)
	// ImageViews are owned by the swapchain and replaced by Recreate.
	ImageViews() []ImageView
	Recreate() (SwapchainChanges, error)
	AcquireNextImage(signal Semaphore) (int, Status, error)
	Present(wait Semaphore, imageIndex int) (Status, error)
}
