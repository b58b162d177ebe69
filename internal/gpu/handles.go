package gpu

// Handle identifies an object created through a Device. The zero Handle is
// never issued and stands for "no object".
type Handle uint64

// Kind names the type of object a Handle refers to.
type Kind int

const (
	KindBuffer Kind = iota + 1
	KindImage
	KindImageView
	KindFramebuffer
	KindRenderPass
	KindPipeline
	KindPipelineLayout
	KindDescriptorSetLayout
	KindDescriptorPool
	KindDescriptorSet
	KindSampler
	KindShaderModule
	KindCommandBuffer
	KindFence
	KindSemaphore
)

var kindNames = map[Kind]string{
	KindBuffer:              "Buffer",
	KindImage:               "Image",
	KindImageView:           "ImageView",
	KindFramebuffer:         "Framebuffer",
	KindRenderPass:          "RenderPass",
	KindPipeline:            "Pipeline",
	KindPipelineLayout:      "PipelineLayout",
	KindDescriptorSetLayout: "DescriptorSetLayout",
	KindDescriptorPool:      "DescriptorPool",
	KindDescriptorSet:       "DescriptorSet",
	KindSampler:             "Sampler",
	KindShaderModule:        "ShaderModule",
	KindCommandBuffer:       "CommandBuffer",
	KindFence:               "Fence",
	KindSemaphore:           "Semaphore",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Object is implemented by every handle type so that Device.Destroy can
// release objects of any kind.
type Object interface {
	Handle() Handle
	Kind() Kind
}

type (
	Buffer              Handle
	Image               Handle
	ImageView           Handle
	Framebuffer         Handle
	RenderPass          Handle
	Pipeline            Handle
	PipelineLayout      Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	Sampler             Handle
	ShaderModule        Handle
	CommandBuffer       Handle
	Fence               Handle
	Semaphore           Handle
)

func (h Buffer) Handle() Handle              { return Handle(h) }
func (h Image) Handle() Handle               { return Handle(h) }
func (h ImageView) Handle() Handle           { return Handle(h) }
func (h Framebuffer) Handle() Handle         { return Handle(h) }
func (h RenderPass) Handle() Handle          { return Handle(h) }
func (h Pipeline) Handle() Handle            { return Handle(h) }
func (h PipelineLayout) Handle() Handle      { return Handle(h) }
func (h DescriptorSetLayout) Handle() Handle { return Handle(h) }
func (h DescriptorPool) Handle() Handle      { return Handle(h) }
func (h DescriptorSet) Handle() Handle       { return Handle(h) }
func (h Sampler) Handle() Handle             { return Handle(h) }
func (h ShaderModule) Handle() Handle        { return Handle(h) }
func (h CommandBuffer) Handle() Handle       { return Handle(h) }
func (h Fence) Handle() Handle               { return Handle(h) }
func (h Semaphore) Handle() Handle           { return Handle(h) }

func (Buffer) Kind() Kind              { return KindBuffer }
func (Image) Kind() Kind               { return KindImage }
func (ImageView) Kind() Kind           { return KindImageView }
func (Framebuffer) Kind() Kind         { return KindFramebuffer }
func (RenderPass) Kind() Kind          { return KindRenderPass }
func (Pipeline) Kind() Kind            { return KindPipeline }
func (PipelineLayout) Kind() Kind      { return KindPipelineLayout }
func (DescriptorSetLayout) Kind() Kind { return KindDescriptorSetLayout }
func (DescriptorPool) Kind() Kind      { return KindDescriptorPool }
func (DescriptorSet) Kind() Kind       { return KindDescriptorSet }
func (Sampler) Kind() Kind             { return KindSampler }
func (ShaderModule) Kind() Kind        { return KindShaderModule }
func (CommandBuffer) Kind() Kind       { return KindCommandBuffer }
func (Fence) Kind() Kind               { return KindFence }
func (Semaphore) Kind() Kind           { return KindSemaphore }
