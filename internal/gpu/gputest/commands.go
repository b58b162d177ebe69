package gputest

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

func (d *Device) recording(cb gpu.CommandBuffer, op string) *stream {
	s, ok := d.streams[cb]
	if !ok {
		d.misused("%s on dead command buffer %d", op, cb)
		return nil
	}
	if !s.recording {
		d.misused("%s on command buffer %d outside recording", op, cb)
		return nil
	}
	return s
}

func (d *Device) record(cb gpu.CommandBuffer, cmd Command) {
	if s := d.recording(cb, cmd.Op); s != nil {
		s.commands = append(s.commands, cmd)
	}
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, flags core1_0.CommandBufferUsageFlags) error {
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	s, ok := d.streams[cb]
	if !ok {
		return &gpu.Error{Op: "BeginCommandBuffer", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("command buffer %d is not live", cb)}
	}
	if state := d.fences[s.inFlight]; state != nil && state.pending {
		d.misused("command buffer %d re-recorded while its submission is in flight", cb)
	}
	d.Events = append(d.Events, Event{Op: EventBeginCmds, CommandBuffer: cb})
	s.recording = true
	s.ended = false
	s.commands = nil
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	s := d.recording(cb, "EndCommandBuffer")
	if s == nil {
		return &gpu.Error{Op: "EndCommandBuffer", Status: "VK_ERROR_VALIDATION_FAILED_EXT"}
	}
	s.recording = false
	s.ended = true
	return nil
}

// Commands returns the commands last recorded into cb.
func (d *Device) Commands(cb gpu.CommandBuffer) []Command {
	if s, ok := d.streams[cb]; ok {
		return s.commands
	}
	return nil
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, srcStage, dstStage core1_0.PipelineStageFlags, barriers ...gpu.BufferBarrier) error {
	d.record(cb, Command{Op: OpPipelineBarrier, SrcStage: srcStage, DstStage: dstStage, Barriers: barriers})
	return nil
}

func (d *Device) CmdUpdateBuffer(cb gpu.CommandBuffer, buffer gpu.Buffer, offset int, data []byte) error {
	if len(data) > 65536 || len(data)%4 != 0 || offset%4 != 0 {
		d.misused("inline buffer update of %d bytes at offset %d", len(data), offset)
	}
	if state, ok := d.buffers[buffer]; ok && state.desc.Usage&core1_0.BufferUsageTransferDst == 0 {
		d.misused("inline update of buffer %d without transfer-dst usage", buffer)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	d.record(cb, Command{Op: OpUpdateBuffer, Dst: buffer, Offset: offset, Data: payload})
	return nil
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size int) error {
	d.record(cb, Command{Op: OpCopyBuffer, Src: src, Dst: dst, Size: size})
	return nil
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) error {
	if !d.isLive(begin.Framebuffer) {
		d.misused("render pass begun on dead framebuffer %d", begin.Framebuffer)
	} else if fb := d.framebuffers[begin.Framebuffer]; fb.RenderPass != begin.RenderPass {
		d.misused("framebuffer %d was created for render pass %d, not %d", begin.Framebuffer, fb.RenderPass, begin.RenderPass)
	}
	d.record(cb, Command{
		Op:          OpBeginRenderPass,
		RenderPass:  begin.RenderPass,
		Framebuffer: begin.Framebuffer,
		Extent:      begin.Extent,
		ClearValues: begin.ClearValues,
	})
	return nil
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.record(cb, Command{Op: OpEndRenderPass})
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, pipeline gpu.Pipeline) {
	if !d.isLive(pipeline) {
		d.misused("bind of dead pipeline %d", pipeline)
	}
	d.record(cb, Command{Op: OpBindPipeline, Pipeline: pipeline})
}

func (d *Device) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet int, sets ...gpu.DescriptorSet) {
	d.record(cb, Command{Op: OpBindDescriptorSets, Layout: layout, FirstSet: firstSet, Sets: sets})
}

func (d *Device) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding int, buffers ...gpu.Buffer) {
	d.record(cb, Command{Op: OpBindVertexBuffers, FirstSet: firstBinding, Buffers: buffers})
}

func (d *Device) CmdDraw(cb gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	d.record(cb, Command{Op: OpDraw, VertexCount: vertexCount, InstanceCount: instanceCount})
}

// DrawCount returns the number of draw commands in the submissions made so
// far.
func (d *Device) DrawCount() int {
	n := 0
	for _, sub := range d.Submissions {
		for _, cmd := range sub.Commands {
			if cmd.Op == OpDraw {
				n++
			}
		}
	}
	return n
}

func (d *Device) QueueSubmit(submit gpu.Submit) error {
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	s, ok := d.streams[submit.CommandBuffer]
	if !ok || !s.ended {
		return &gpu.Error{Op: "QueueSubmit", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("command buffer %d is not executable", submit.CommandBuffer)}
	}
	if submit.Fence != 0 {
		state, ok := d.fences[submit.Fence]
		if !ok {
			return &gpu.Error{Op: "QueueSubmit", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("fence %d is not live", submit.Fence)}
		}
		if state.signaled || state.pending {
			return &gpu.Error{Op: "QueueSubmit", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("fence %d submitted while not reset", submit.Fence)}
		}
		state.pending = true
	}
	if submit.Wait != 0 {
		if err := d.consume(submit.Wait, "QueueSubmit"); err != nil {
			return err
		}
	}
	if submit.Signal != 0 {
		if err := d.signal(submit.Signal, "QueueSubmit"); err != nil {
			return err
		}
	}

	d.validateStream(s.commands)
	d.execute(s.commands)
	s.inFlight = submit.Fence

	d.Events = append(d.Events, Event{Op: EventSubmit, Fence: submit.Fence, CommandBuffer: submit.CommandBuffer})
	d.Submissions = append(d.Submissions, Submission{Submit: submit, Commands: s.commands})
	return nil
}

// validateStream checks that everything a stream reads is still alive and
// that descriptor sets point at live resources at submission time.
func (d *Device) validateStream(commands []Command) {
	for _, cmd := range commands {
		switch cmd.Op {
		case OpBindDescriptorSets:
			for _, set := range cmd.Sets {
				bindings, ok := d.sets[set]
				if !ok {
					d.misused("submitted dead descriptor set %d", set)
					continue
				}
				for binding, w := range bindings {
					if w.Buffer != 0 && !d.isLive(w.Buffer) {
						d.misused("descriptor set %d binding %d reads dead buffer %d", set, binding, w.Buffer)
					}
					if w.ImageView != 0 && !d.isLive(w.ImageView) {
						d.misused("descriptor set %d binding %d reads dead view %d", set, binding, w.ImageView)
					}
				}
			}
		case OpBeginRenderPass:
			fb, ok := d.framebuffers[cmd.Framebuffer]
			if !ok {
				d.misused("submitted dead framebuffer %d", cmd.Framebuffer)
				continue
			}
			for _, v := range fb.Attachments {
				if !d.isLive(v) {
					d.misused("framebuffer %d attachment is dead view %d", cmd.Framebuffer, v)
				}
			}
		case OpBindVertexBuffers:
			for _, b := range cmd.Buffers {
				if !d.isLive(b) {
					d.misused("submitted dead vertex buffer %d", b)
				}
			}
		}
	}
}

// execute applies the side effects of transfer commands.
func (d *Device) execute(commands []Command) {
	for _, cmd := range commands {
		switch cmd.Op {
		case OpUpdateBuffer:
			if state, ok := d.buffers[cmd.Dst]; ok && cmd.Offset+len(cmd.Data) <= len(state.data) {
				copy(state.data[cmd.Offset:], cmd.Data)
			}
		case OpCopyBuffer:
			src, srcOK := d.buffers[cmd.Src]
			dst, dstOK := d.buffers[cmd.Dst]
			if srcOK && dstOK && cmd.Size <= len(src.data) && cmd.Size <= len(dst.data) {
				copy(dst.data, src.data[:cmd.Size])
			}
		}
	}
}

func (d *Device) WaitForFence(fence gpu.Fence) error {
	if err := d.fail("WaitForFence"); err != nil {
		return err
	}
	state, ok := d.fences[fence]
	if !ok {
		return &gpu.Error{Op: "WaitForFence", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("fence %d is not live", fence)}
	}
	if !state.signaled && !state.pending {
		return &gpu.Error{Op: "WaitForFence", Status: "VK_ERROR_DEVICE_LOST", Err: fmt.Errorf("fence %d would never signal", fence)}
	}
	state.pending = false
	state.signaled = true
	d.Events = append(d.Events, Event{Op: EventWait, Fence: fence})
	return nil
}

func (d *Device) ResetFence(fence gpu.Fence) error {
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	state, ok := d.fences[fence]
	if !ok {
		return &gpu.Error{Op: "ResetFence", Status: "VK_ERROR_VALIDATION_FAILED_EXT", Err: fmt.Errorf("fence %d is not live", fence)}
	}
	if state.pending {
		d.misused("reset of in-flight fence %d", fence)
	}
	state.signaled = false
	d.Events = append(d.Events, Event{Op: EventReset, Fence: fence})
	return nil
}

func (d *Device) WaitIdle() error {
	if err := d.fail("WaitIdle"); err != nil {
		return err
	}
	for _, state := range d.fences {
		if state.pending {
			state.pending = false
			state.signaled = true
		}
	}
	d.Events = append(d.Events, Event{Op: EventWaitIdle})
	return nil
}

// Busy reports whether any submission has not been waited on.
func (d *Device) Busy() bool {
	for _, state := range d.fences {
		if state.pending {
			return true
		}
	}
	return false
}
