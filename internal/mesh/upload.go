package mesh

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

// Vertex attribute bindings, one buffer each.
const (
	BindingPosition = iota
	BindingNormal
	BindingTexCoord
	BindingColor
	BindingFaceNormal
	bindingCount
)

// VertexBindings describes the five non-interleaved attribute streams.
func VertexBindings() []core1_0.VertexInputBindingDescription {
	strides := [bindingCount]int{12, 12, 8, 12, 12}
	out := make([]core1_0.VertexInputBindingDescription, bindingCount)
	for i, stride := range strides {
		out[i] = core1_0.VertexInputBindingDescription{
			Binding:   i,
			Stride:    stride,
			InputRate: core1_0.VertexInputRateVertex,
		}
	}
	return out
}

func VertexAttributes() []core1_0.VertexInputAttributeDescription {
	formats := [bindingCount]core1_0.Format{
		core1_0.FormatR32G32B32SignedFloat,
		core1_0.FormatR32G32B32SignedFloat,
		core1_0.FormatR32G32SignedFloat,
		core1_0.FormatR32G32B32SignedFloat,
		core1_0.FormatR32G32B32SignedFloat,
	}
	out := make([]core1_0.VertexInputAttributeDescription, bindingCount)
	for i, format := range formats {
		out[i] = core1_0.VertexInputAttributeDescription{
			Binding:  i,
			Location: i,
			Format:   format,
			Offset:   0,
		}
	}
	return out
}

// Submesh is one uploaded Mesh.
type Submesh struct {
	Buffers     [bindingCount]gpu.Buffer
	VertexCount int
	Material    int
}

// VertexBuffers returns the attribute buffers in binding order.
func (s *Submesh) VertexBuffers() []gpu.Buffer {
	return s.Buffers[:]
}

// LoadedMesh owns the device-local buffers of a model. It is immutable after
// Upload returns.
type LoadedMesh struct {
	Submeshes []Submesh
}

// Destroy releases every buffer.
func (l *LoadedMesh) Destroy(dev gpu.Device) {
	for i := range l.Submeshes {
		for _, b := range l.Submeshes[i].Buffers {
			dev.Destroy(b)
		}
	}
	l.Submeshes = nil
}

type streams [bindingCount][]byte

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func prepare(model *Model, m *Mesh) (streams, error) {
	var out streams
	var err error
	sources := [bindingCount]any{m.Positions, m.Normals, m.TexCoords, model.Colors(m), m.FaceNormals()}
	for i, src := range sources {
		if out[i], err = encode(src); err != nil {
			return out, errors.Wrapf(err, "encode %s attribute %d", m.Name, i)
		}
	}
	return out, nil
}

// Upload copies every mesh of the model into device-local vertex buffers
// through host-visible staging buffers, then waits for the copies. Attribute
// encoding runs in parallel; all GPU calls happen on the calling goroutine.
func Upload(dev gpu.Device, model *Model, log *logrus.Entry) (loaded *LoadedMesh, err error) {
	prepared := make([]streams, len(model.Meshes))
	var g errgroup.Group
	for i := range model.Meshes {
		i := i
		g.Go(func() error {
			var err error
			prepared[i], err = prepare(model, &model.Meshes[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loaded = &LoadedMesh{}
	var staging, created []gpu.Object
	submitted := false
	defer func() {
		if err != nil && submitted {
			// The copies may still be reading the staging buffers.
			if idleErr := dev.WaitIdle(); idleErr != nil {
				err = errors.CombineErrors(err, idleErr)
			}
		}
		dev.Destroy(staging...)
		if err != nil {
			dev.Destroy(created...)
			loaded = nil
		}
	}()

	cbs, err := dev.AllocateCommandBuffers(1)
	if err != nil {
		return loaded, errors.Wrap(err, "allocate upload command buffer")
	}
	cb := cbs[0]
	staging = append(staging, cb)

	fence, err := dev.CreateFence(false)
	if err != nil {
		return loaded, errors.Wrap(err, "create upload fence")
	}
	staging = append(staging, fence)

	if err = dev.BeginCommandBuffer(cb, core1_0.CommandBufferUsageOneTimeSubmit); err != nil {
		return loaded, errors.Wrap(err, "begin upload commands")
	}

	var barriers []gpu.BufferBarrier
	totalBytes := 0
	for i, m := range model.Meshes {
		if m.VertexCount() == 0 {
			continue
		}
		sub := Submesh{VertexCount: m.VertexCount(), Material: m.Material}
		for binding, data := range prepared[i] {
			src, err := dev.CreateBuffer(gpu.BufferDesc{
				Size:   len(data),
				Usage:  core1_0.BufferUsageTransferSrc,
				Memory: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			})
			if err != nil {
				return loaded, errors.Wrapf(err, "create staging buffer for %s", m.Name)
			}
			staging = append(staging, src)
			if err := dev.WriteBuffer(src, 0, data); err != nil {
				return loaded, errors.Wrapf(err, "fill staging buffer for %s", m.Name)
			}

			dst, err := dev.CreateBuffer(gpu.BufferDesc{
				Size:   len(data),
				Usage:  core1_0.BufferUsageTransferDst | core1_0.BufferUsageVertexBuffer,
				Memory: core1_0.MemoryPropertyDeviceLocal,
			})
			if err != nil {
				return loaded, errors.Wrapf(err, "create vertex buffer for %s", m.Name)
			}
			created = append(created, dst)
			sub.Buffers[binding] = dst

			if err := dev.CmdCopyBuffer(cb, src, dst, len(data)); err != nil {
				return loaded, errors.Wrapf(err, "copy vertex buffer for %s", m.Name)
			}
			barriers = append(barriers, gpu.BufferBarrier{
				Buffer:    dst,
				SrcAccess: core1_0.AccessTransferWrite,
				DstAccess: core1_0.AccessVertexAttributeRead,
			})
			totalBytes += len(data)
		}
		loaded.Submeshes = append(loaded.Submeshes, sub)
	}

	if len(barriers) > 0 {
		if err = dev.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageVertexInput, barriers...); err != nil {
			return loaded, errors.Wrap(err, "record upload barriers")
		}
	}
	if err = dev.EndCommandBuffer(cb); err != nil {
		return loaded, errors.Wrap(err, "end upload commands")
	}
	if err = dev.QueueSubmit(gpu.Submit{CommandBuffer: cb, Fence: fence}); err != nil {
		return loaded, errors.Wrap(err, "submit upload")
	}
	submitted = true
	if err = dev.WaitForFence(fence); err != nil {
		return loaded, errors.Wrap(err, "wait for upload")
	}

	log.WithFields(logrus.Fields{
		"model":     model.Name,
		"submeshes": len(loaded.Submeshes),
		"bytes":     totalBytes,
	}).Info("Mesh uploaded")
	return loaded, nil
}
