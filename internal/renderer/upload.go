package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/input"
	"github.com/vkngwrapper/bloom/internal/uniforms"
)

// updateUniform records an inline update of u wrapped in two barriers: the
// first orders it after the previous frame's shader reads, the second makes
// the new contents visible to this frame's reads.
func (r *Renderer) updateUniform(cb gpu.CommandBuffer, u uniformBuffer, block any) error {
	data, err := uniforms.Encode(block)
	if err != nil {
		return err
	}
	if len(data) != u.size {
		return errors.AssertionFailedf("%T is %d bytes but its buffer holds %d", block, len(data), u.size)
	}

	if err := r.dev.CmdPipelineBarrier(cb, u.readers, core1_0.PipelineStageTransfer, gpu.BufferBarrier{
		Buffer:    u.buffer,
		SrcAccess: core1_0.AccessUniformRead,
		DstAccess: core1_0.AccessTransferWrite,
	}); err != nil {
		return errors.Wrap(err, "record pre-update barrier")
	}
	if err := r.dev.CmdUpdateBuffer(cb, u.buffer, 0, data); err != nil {
		return errors.Wrapf(err, "record update of %T", block)
	}
	if err := r.dev.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, u.readers, gpu.BufferBarrier{
		Buffer:    u.buffer,
		SrcAccess: core1_0.AccessTransferWrite,
		DstAccess: core1_0.AccessUniformRead,
	}); err != nil {
		return errors.Wrap(err, "record post-update barrier")
	}
	return nil
}

// updateUniforms records the scene block and both blocks of every material
// from the current input state.
func (r *Renderer) updateUniforms(cb gpu.CommandBuffer, state *input.State) error {
	scene := uniforms.NewScene(state, r.extent.Width, r.extent.Height, r.cfg.FieldOfView)
	if err := r.updateUniform(cb, r.scene, scene); err != nil {
		return errors.Wrap(err, "scene uniforms")
	}

	for i, mat := range r.model.Materials {
		basic := uniforms.NewMaterial(mat.Emissive, mat.Diffuse, mat.Specular, mat.Shininess)
		if err := r.updateUniform(cb, r.materials[i].basic, basic); err != nil {
			return errors.Wrapf(err, "material %q uniforms", mat.Name)
		}
		pbr := uniforms.NewMaterialPBR(mat.Emissive, mat.Albedo, mat.Shininess, mat.Metalness, state.Lights)
		if err := r.updateUniform(cb, r.materials[i].pbr, pbr); err != nil {
			return errors.Wrapf(err, "material %q PBR uniforms", mat.Name)
		}
	}
	return nil
}
