// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Format of image texels and vertex attributes. Values match Vulkan.
type Format uint32

// Supported formats.
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
)

// ColorSpace of a presentable surface.
type ColorSpace uint32

// ColorSpaceSRGBNonlinear is the only color space every surface must support.
const ColorSpaceSRGBNonlinear ColorSpace = 0

// ImageLayout is the memory arrangement of an image.
type ImageLayout uint32

// Image layouts.
const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
	ImageLayoutDepthAttachmentOptimal        ImageLayout = 1000241000
)

// IsDepth reports whether the layout is a depth attachment layout.
func (l ImageLayout) IsDepth() bool {
	return l == ImageLayoutDepthAttachmentOptimal || l == ImageLayoutDepthStencilAttachmentOptimal
}

// String returns the layout name used in logs and errors.
func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "DepthStencilAttachmentOptimal"
	case ImageLayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case ImageLayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case ImageLayoutTransferDstOptimal:
		return "TransferDstOptimal"
	case ImageLayoutPresentSrc:
		return "PresentSrc"
	case ImageLayoutDepthAttachmentOptimal:
		return "DepthAttachmentOptimal"
	}
	return "Unknown"
}

// PresentMode decides how presented images reach the screen.
type PresentMode uint32

// Present modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

// String returns the mode name.
func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return "unknown"
}

// DescriptorType is the kind of resource a descriptor binds.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
)

// BufferUsage flags.
type BufferUsage uint32

// Buffer usages.
const (
	BufferUsageTransferSrc         BufferUsage = 0x1
	BufferUsageTransferDst         BufferUsage = 0x2
	BufferUsageUniformTexel        BufferUsage = 0x4
	BufferUsageStorageTexel        BufferUsage = 0x8
	BufferUsageUniform             BufferUsage = 0x10
	BufferUsageStorage             BufferUsage = 0x20
	BufferUsageIndex               BufferUsage = 0x40
	BufferUsageVertex              BufferUsage = 0x80
	BufferUsageIndirect            BufferUsage = 0x100
	BufferUsageShaderDeviceAddress BufferUsage = 0x20000
)

// ImageUsage flags.
type ImageUsage uint32

// Image usages.
const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageStorage         ImageUsage = 0x8
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthStencil    ImageUsage = 0x20
)

// ImageAspect selects the planes of an image.
type ImageAspect uint32

// Image aspects.
const (
	ImageAspectColor ImageAspect = 0x1
	ImageAspectDepth ImageAspect = 0x2
)

// ShaderStage flags.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageVertex      ShaderStage = 0x1
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1F
)

// PipelineStage flags.
type PipelineStage uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageAllGraphics           PipelineStage = 0x8000
	PipelineStageAllCommands           PipelineStage = 0x10000
)

// Access flags.
type Access uint32

// Access masks.
const (
	AccessMemoryRead  Access = 0x8000
	AccessMemoryWrite Access = 0x10000
)

// Filter used by blits and samplers.
type Filter uint32

// Filters.
const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

// IndexType is the element type of an index buffer.
type IndexType uint32

// Index types.
const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

// MemoryUsage tells the allocator where an allocation should live.
type MemoryUsage int

// Memory usages.
const (
	MemoryUsageGPUOnly MemoryUsage = iota
	MemoryUsageCPUOnly
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
)

// HostVisible reports whether allocations of this usage can be mapped.
func (m MemoryUsage) HostVisible() bool {
	return m != MemoryUsageGPUOnly
}

// PrimitiveTopology of drawn vertices.
type PrimitiveTopology uint32

// Topologies.
const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
)

// PolygonMode of rasterization.
type PolygonMode uint32

// Polygon modes.
const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

// CullMode flags.
type CullMode uint32

// Cull modes.
const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

// FrontFace winding.
type FrontFace uint32

// Front faces.
const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

// CompareOp used by depth tests.
type CompareOp uint32

// Compare operations.
const (
	CompareOpNever          CompareOp = 0
	CompareOpLess           CompareOp = 1
	CompareOpLessOrEqual    CompareOp = 3
	CompareOpGreaterOrEqual CompareOp = 6
	CompareOpAlways         CompareOp = 7
)

// BlendMode of the color attachment.
type BlendMode int

// Blend modes.
const (
	BlendDisabled BlendMode = iota
	BlendAdditive
	BlendAlpha
)

// Extent2D is a size in pixels.
type Extent2D struct {
	Width, Height uint32
}

// Zero reports whether either dimension is zero.
func (e Extent2D) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

// Extent3D is a size in texels.
type Extent3D struct {
	Width, Height, Depth uint32
}

// Offset2D is a position in pixels.
type Offset2D struct {
	X, Y int32
}

// Rect2D is a rectangle in pixels.
type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

// Viewport transform.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Limits of a physical device relevant to resource layout.
type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	MaxPushConstantsSize            uint32
}

// BufferInfo describes a buffer allocation.
type BufferInfo struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
}

// ImageInfo describes an image allocation.
type ImageInfo struct {
	Extent Extent3D
	Format Format
	Usage  ImageUsage
	Memory MemoryUsage
}

// ImageViewInfo describes a view over a whole single-level image.
type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

// AllocatorStats is a snapshot of live allocations.
type AllocatorStats struct {
	Buffers int
	Images  int
	Bytes   uint64
}

// ImageBarrier is a layout transition with execution and memory dependencies.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	Aspect    ImageAspect
}

// BlitInfo copies and scales the full extent of one image into another.
type BlitInfo struct {
	Src       Image
	SrcLayout ImageLayout
	SrcExtent Extent2D
	Dst       Image
	DstLayout ImageLayout
	DstExtent Extent2D
	Filter    Filter
}

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// RenderingInfo starts rendering into a single color attachment.
type RenderingInfo struct {
	ColorView   ImageView
	ColorFormat Format
	Extent      Extent2D
	Clear       bool
	ClearColor  [4]float32
}

// SemaphoreWait is a semaphore waited on at a pipeline stage.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     PipelineStage
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []SemaphoreWait
	Signal         []Semaphore
	SignalStage    PipelineStage
}

// PresentInfo describes one presentation request.
type PresentInfo struct {
	Swapchain  Swapchain
	ImageIndex uint32
	Wait       []Semaphore
}

// SurfaceFormat pairs a format with its color space.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities describes what a surface supports.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// UndefinedExtent is the current extent reported by surfaces whose size
// is decided by the swapchain.
const UndefinedExtent = 0xFFFFFFFF

// SwapchainInfo describes a swapchain to create.
type SwapchainInfo struct {
	Format        SurfaceFormat
	PresentMode   PresentMode
	Extent        Extent2D
	MinImageCount uint32
	Usage         ImageUsage
	// QueueFamilies lists the families that access the images. More than
	// one distinct family selects concurrent sharing.
	QueueFamilies []uint32
	Old           Swapchain
}

// DescriptorPoolSize is the number of descriptors of one type in a pool.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolInfo describes a descriptor pool.
type DescriptorPoolInfo struct {
	MaxSets           uint32
	Sizes             []DescriptorPoolSize
	FreeDescriptorSet bool
}

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorImageInfo is the image side of a descriptor write.
type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// DescriptorBufferInfo is the buffer side of a descriptor write.
type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// DescriptorWrite updates one binding of a descriptor set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Image   *DescriptorImageInfo
	Buffer  *DescriptorBufferInfo
}

// PushConstantRange is a range of push constants visible to some stages.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutInfo describes a pipeline layout.
type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

// ShaderStageInfo attaches a shader module to a pipeline stage.
type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

// VertexBinding describes a vertex buffer binding.
type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

// VertexAttribute describes one vertex attribute.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineInfo describes a graphics pipeline with dynamic
// viewport and scissor state.
type GraphicsPipelineInfo struct {
	Stages           []ShaderStageInfo
	Layout           PipelineLayout
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         PrimitiveTopology
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	Blend            BlendMode
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	ColorFormat      Format
	DepthFormat      Format
}

// SamplerInfo describes a sampler.
type SamplerInfo struct {
	MagFilter Filter
	MinFilter Filter
}
