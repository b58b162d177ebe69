package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/bloom/internal/gpu"
	"github.com/vkngwrapper/bloom/internal/uniforms"
)

// uniformBuffer is a device-local buffer updated inline every frame and the
// descriptor set that exposes it. readers is the shader stage that consumes
// it, which scopes both barriers around an update.
type uniformBuffer struct {
	buffer  gpu.Buffer
	set     gpu.DescriptorSet
	size    int
	readers core1_0.PipelineStageFlags
}

type materialUniforms struct {
	basic uniformBuffer
	pbr   uniformBuffer
}

func blockSize(block any) (int, error) {
	encoded, err := uniforms.Encode(block)
	if err != nil {
		return 0, err
	}
	return len(encoded), nil
}

func (r *Renderer) createUniformBuffer(size int, readers core1_0.PipelineStageFlags) (uniformBuffer, error) {
	if err := uniforms.CheckUpdateSize(size); err != nil {
		return uniformBuffer{}, err
	}
	b, err := r.dev.CreateBuffer(gpu.BufferDesc{
		Size:   size,
		Usage:  core1_0.BufferUsageUniformBuffer | core1_0.BufferUsageTransferDst,
		Memory: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return uniformBuffer{}, err
	}
	return uniformBuffer{buffer: b, size: size, readers: readers}, nil
}

// createDescriptors creates the pool, the uniform buffers and every
// descriptor set. Uniform sets are written once here; texture sets are
// written by writeTextureSets whenever the targets change.
func (r *Renderer) createDescriptors() error {
	materials := len(r.model.Materials)
	uniformSets := 1 + 2*materials

	pool, err := r.dev.CreateDescriptorPool(uniformSets+int(targetCount),
		core1_0.DescriptorPoolSize{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: uniformSets},
		core1_0.DescriptorPoolSize{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: int(targetCount)},
	)
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	r.pool = pool

	sceneSize, err := blockSize(uniforms.SceneUniform{})
	if err != nil {
		return err
	}
	materialSize, err := blockSize(uniforms.MaterialUniform{})
	if err != nil {
		return err
	}
	pbrSize, err := blockSize(uniforms.MaterialPBRUniform{})
	if err != nil {
		return err
	}

	if r.scene, err = r.createUniformBuffer(sceneSize, core1_0.PipelineStageVertexShader); err != nil {
		return errors.Wrap(err, "create scene uniform buffer")
	}
	r.materials = make([]materialUniforms, materials)
	for i := range r.materials {
		if r.materials[i].basic, err = r.createUniformBuffer(materialSize, core1_0.PipelineStageFragmentShader); err != nil {
			return errors.Wrapf(err, "create material %d uniform buffer", i)
		}
		if r.materials[i].pbr, err = r.createUniformBuffer(pbrSize, core1_0.PipelineStageFragmentShader); err != nil {
			return errors.Wrapf(err, "create material %d PBR uniform buffer", i)
		}
	}

	setLayouts := []gpu.DescriptorSetLayout{r.layouts.scene}
	for range r.materials {
		setLayouts = append(setLayouts, r.layouts.material, r.layouts.material)
	}
	for range r.textureSets {
		setLayouts = append(setLayouts, r.layouts.texture)
	}
	sets, err := r.dev.AllocateDescriptorSets(r.pool, setLayouts...)
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}
	if len(sets) != len(setLayouts) {
		return errors.AssertionFailedf("allocated %d descriptor sets, want %d", len(sets), len(setLayouts))
	}

	r.scene.set = sets[0]
	for i := range r.materials {
		r.materials[i].basic.set = sets[1+2*i]
		r.materials[i].pbr.set = sets[2+2*i]
	}
	copy(r.textureSets[:], sets[uniformSets:])

	writes := []gpu.DescriptorWrite{uniformWrite(r.scene)}
	for _, m := range r.materials {
		writes = append(writes, uniformWrite(m.basic), uniformWrite(m.pbr))
	}
	if err := r.dev.UpdateDescriptorSets(writes...); err != nil {
		return errors.Wrap(err, "write uniform descriptors")
	}
	return nil
}

func uniformWrite(u uniformBuffer) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Set:     u.set,
		Binding: 0,
		Type:    core1_0.DescriptorTypeUniformBuffer,
		Buffer:  u.buffer,
		Range:   u.size,
	}
}

// writeTextureSets points each texture set at its offscreen target. The
// sets are updated in place, so this must run while no submitted work reads
// them.
func (r *Renderer) writeTextureSets() error {
	writes := make([]gpu.DescriptorWrite, 0, targetCount)
	for i, t := range r.targets {
		writes = append(writes, gpu.DescriptorWrite{
			Set:       r.textureSets[i],
			Binding:   0,
			Type:      core1_0.DescriptorTypeCombinedImageSampler,
			ImageView: t.view,
			Sampler:   r.sampler,
			Layout:    core1_0.ImageLayoutShaderReadOnlyOptimal,
		})
	}
	if err := r.dev.UpdateDescriptorSets(writes...); err != nil {
		return errors.Wrap(err, "write texture descriptors")
	}
	return nil
}

// destroyDescriptors releases the pool, which frees its sets, and the
// uniform buffers.
func (r *Renderer) destroyDescriptors() {
	r.dev.Destroy(r.pool)
	r.pool = 0
	r.textureSets = [targetCount]gpu.DescriptorSet{}

	r.dev.Destroy(r.scene.buffer)
	r.scene = uniformBuffer{}
	for _, m := range r.materials {
		r.dev.Destroy(m.basic.buffer, m.pbr.buffer)
	}
	r.materials = nil
}
