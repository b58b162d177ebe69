package vkgpu

import (
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

// Recording calls on handles the backend does not know are dropped; the
// validation layer reports the resulting incomplete stream.

func (b *Backend) BeginCommandBuffer(cb gpu.CommandBuffer, flags core1_0.CommandBufferUsageFlags) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("BeginCommandBuffer", cb)
	}
	res, err := b.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{Flags: flags})
	if err != nil {
		return failure("BeginCommandBuffer", res, err)
	}
	return nil
}

func (b *Backend) EndCommandBuffer(cb gpu.CommandBuffer) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("EndCommandBuffer", cb)
	}
	res, err := b.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return failure("EndCommandBuffer", res, err)
	}
	return nil
}

func (b *Backend) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.BufferBarrier) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("CmdPipelineBarrier", cb)
	}
	var out []core1_0.BufferMemoryBarrier
	for _, barrier := range barriers {
		target, ok := b.buffers.get(barrier.Buffer.Handle())
		if !ok {
			return missing("CmdPipelineBarrier", barrier.Buffer)
		}
		size := barrier.Size
		if size == 0 {
			size = target.size - barrier.Offset
		}
		out = append(out, core1_0.BufferMemoryBarrier{
			SrcAccessMask:       barrier.SrcAccess,
			DstAccessMask:       barrier.DstAccess,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Buffer:              target.buffer,
			Offset:              barrier.Offset,
			Size:                size,
		})
	}
	if err := b.deviceDriver.CmdPipelineBarrier(buffer, srcStage, dstStage, 0, nil, out, nil); err != nil {
		return &gpu.Error{Op: "CmdPipelineBarrier", Status: "failed", Err: err}
	}
	return nil
}

func (b *Backend) CmdUpdateBuffer(cb gpu.CommandBuffer, buf gpu.Buffer, offset int, data []byte) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("CmdUpdateBuffer", cb)
	}
	target, ok := b.buffers.get(buf.Handle())
	if !ok {
		return missing("CmdUpdateBuffer", buf)
	}
	if err := b.deviceDriver.CmdUpdateBuffer(buffer, target.buffer, offset, len(data), data); err != nil {
		return &gpu.Error{Op: "CmdUpdateBuffer", Status: "failed", Err: err}
	}
	return nil
}

func (b *Backend) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size int) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("CmdCopyBuffer", cb)
	}
	from, ok := b.buffers.get(src.Handle())
	if !ok {
		return missing("CmdCopyBuffer", src)
	}
	to, ok := b.buffers.get(dst.Handle())
	if !ok {
		return missing("CmdCopyBuffer", dst)
	}
	err := b.deviceDriver.CmdCopyBuffer(buffer, from.buffer, to.buffer, core1_0.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	})
	if err != nil {
		return &gpu.Error{Op: "CmdCopyBuffer", Status: "failed", Err: err}
	}
	return nil
}

func (b *Backend) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return missing("CmdBeginRenderPass", cb)
	}
	renderPass, ok := b.renderPasses.get(begin.RenderPass.Handle())
	if !ok {
		return missing("CmdBeginRenderPass", begin.RenderPass)
	}
	framebuffer, ok := b.framebuffers.get(begin.Framebuffer.Handle())
	if !ok {
		return missing("CmdBeginRenderPass", begin.Framebuffer)
	}
	err := b.deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: begin.Extent,
			},
			ClearValues: begin.ClearValues,
		})
	if err != nil {
		return &gpu.Error{Op: "CmdBeginRenderPass", Status: "failed", Err: err}
	}
	return nil
}

func (b *Backend) CmdEndRenderPass(cb gpu.CommandBuffer) {
	if buffer, ok := b.commandBuffers.get(cb.Handle()); ok {
		b.deviceDriver.CmdEndRenderPass(buffer)
	}
}

func (b *Backend) CmdBindPipeline(cb gpu.CommandBuffer, pipeline gpu.Pipeline) {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	p, found := b.pipelines.get(pipeline.Handle())
	if ok && found {
		b.deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, p)
	}
}

func (b *Backend) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet int, sets ...gpu.DescriptorSet) {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return
	}
	l, ok := b.pipelineLayouts.get(layout.Handle())
	if !ok {
		return
	}
	out := make([]core1_0.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := b.sets.get(s.Handle())
		if !ok {
			return
		}
		out = append(out, set.set)
	}
	b.deviceDriver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, l, firstSet, out, nil)
}

func (b *Backend) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding int, buffers ...gpu.Buffer) {
	buffer, ok := b.commandBuffers.get(cb.Handle())
	if !ok {
		return
	}
	out := make([]core1_0.Buffer, 0, len(buffers))
	offsets := make([]int, 0, len(buffers))
	for _, vb := range buffers {
		target, ok := b.buffers.get(vb.Handle())
		if !ok {
			return
		}
		out = append(out, target.buffer)
		offsets = append(offsets, 0)
	}
	b.deviceDriver.CmdBindVertexBuffers(buffer, firstBinding, out, offsets)
}

func (b *Backend) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	if buffer, ok := b.commandBuffers.get(cb.Handle()); ok {
		b.deviceDriver.CmdDraw(buffer, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (b *Backend) QueueSubmit(submit gpu.Submit) error {
	buffer, ok := b.commandBuffers.get(submit.CommandBuffer.Handle())
	if !ok {
		return missing("QueueSubmit", submit.CommandBuffer)
	}
	info := core1_0.SubmitInfo{CommandBuffers: []core1_0.CommandBuffer{buffer}}
	if submit.Wait != 0 {
		wait, ok := b.semaphores.get(submit.Wait.Handle())
		if !ok {
			return missing("QueueSubmit", submit.Wait)
		}
		info.WaitSemaphores = []core1_0.Semaphore{wait}
		info.WaitDstStageMask = []core1_0.PipelineStageFlags{submit.WaitStage}
	}
	if submit.Signal != 0 {
		signal, ok := b.semaphores.get(submit.Signal.Handle())
		if !ok {
			return missing("QueueSubmit", submit.Signal)
		}
		info.SignalSemaphores = []core1_0.Semaphore{signal}
	}

	var fence *core1_0.Fence
	if submit.Fence != 0 {
		f, ok := b.fences.get(submit.Fence.Handle())
		if !ok {
			return missing("QueueSubmit", submit.Fence)
		}
		fence = &f
	}

	res, err := b.deviceDriver.QueueSubmit(b.graphicsQueue, fence, info)
	if err != nil {
		return failure("QueueSubmit", res, err)
	}
	return nil
}

func (b *Backend) WaitForFence(fence gpu.Fence) error {
	f, ok := b.fences.get(fence.Handle())
	if !ok {
		return missing("WaitForFences", fence)
	}
	res, err := b.deviceDriver.WaitForFences(true, common.NoTimeout, f)
	if err != nil {
		return failure("WaitForFences", res, err)
	}
	return nil
}

func (b *Backend) ResetFence(fence gpu.Fence) error {
	f, ok := b.fences.get(fence.Handle())
	if !ok {
		return missing("ResetFences", fence)
	}
	res, err := b.deviceDriver.ResetFences(f)
	if err != nil {
		return failure("ResetFences", res, err)
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	res, err := b.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return failure("DeviceWaitIdle", res, err)
	}
	return nil
}
