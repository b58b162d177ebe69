package uniforms_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"

	"github.com/vkngwrapper/bloom/internal/input"
	"github.com/vkngwrapper/bloom/internal/uniforms"
)

func TestBlockSizes(t *testing.T) {
	c := qt.New(t)
	c.Assert(binary.Size(uniforms.SceneUniform{}), qt.Equals, 372)
	c.Assert(binary.Size(uniforms.MaterialUniform{}), qt.Equals, 52)
	c.Assert(binary.Size(uniforms.MaterialPBRUniform{}), qt.Equals, 44)
}

func TestCheckUpdateSize(t *testing.T) {
	c := qt.New(t)
	c.Assert(uniforms.CheckUpdateSize(65536), qt.IsNil)
	c.Assert(uniforms.CheckUpdateSize(4), qt.IsNil)

	for _, n := range []int{65537, 65540, 6, 0} {
		err := uniforms.CheckUpdateSize(n)
		c.Assert(err, qt.Not(qt.IsNil), qt.Commentf("size %d", n))
		c.Assert(errors.IsAssertionFailure(err), qt.IsTrue)
	}
}

func TestEncodeRejectsOversizedBlock(t *testing.T) {
	c := qt.New(t)
	_, err := uniforms.Encode(make([]float32, 16385))
	c.Assert(err, qt.ErrorMatches, `.*exceeds the 65536 byte inline update limit`)

	data, err := uniforms.Encode(make([]float32, 16384))
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 65536)
}

func TestSceneRoundTripCarriesLightCount(t *testing.T) {
	c := qt.New(t)
	state := input.NewState()

	for lights := 0; lights <= input.MaxLights; lights++ {
		state.Lights = lights
		scene := uniforms.NewScene(state, 1280, 720, 60)

		data, err := uniforms.Encode(scene)
		c.Assert(err, qt.IsNil)

		var decoded uniforms.SceneUniform
		c.Assert(binary.Read(bytes.NewReader(data), common.ByteOrder, &decoded), qt.IsNil)
		c.Assert(decoded.Lights, qt.Equals, int32(lights))
		c.Assert(decoded.LightPos, qt.DeepEquals, scene.LightPos)
		c.Assert(decoded.LightColor[0], qt.Equals, mgl32.Vec4{1, 1, 0.8, 1})
		c.Assert(decoded.ProjCam, qt.Equals, scene.ProjCam)
	}
}

func TestLightCountIsClamped(t *testing.T) {
	c := qt.New(t)
	state := input.NewState()
	state.Lights = 7
	c.Assert(uniforms.NewScene(state, 4, 4, 60).Lights, qt.Equals, int32(3))
	c.Assert(uniforms.NewMaterialPBR(mgl32.Vec3{}, mgl32.Vec3{}, 0, 0, -1).Lights, qt.Equals, int32(0))
}

func TestPerspectiveIsZeroToOneWithFlippedY(t *testing.T) {
	c := qt.New(t)
	proj := uniforms.Perspective(mgl32.DegToRad(90), 1, 0.1, 100)

	project := func(v mgl32.Vec3) mgl32.Vec3 {
		clip := proj.Mul4x1(v.Vec4(1))
		return clip.Vec3().Mul(1 / clip[3])
	}

	nearPoint := project(mgl32.Vec3{0, 0, -0.1})
	farPoint := project(mgl32.Vec3{0, 0, -100})
	c.Assert(mgl32.FloatEqualThreshold(nearPoint[2], 0, 1e-5), qt.IsTrue)
	c.Assert(mgl32.FloatEqualThreshold(farPoint[2], 1, 1e-5), qt.IsTrue)

	up := project(mgl32.Vec3{0, 1, -1})
	c.Assert(up[1] < 0, qt.IsTrue)
}

func TestSceneCameraFollowsPosition(t *testing.T) {
	c := qt.New(t)
	state := input.NewState()
	scene := uniforms.NewScene(state, 800, 600, 60)

	c.Assert(scene.Rotation, qt.Equals, mgl32.Ident4())
	c.Assert(scene.Camera.Col(3), qt.Equals, mgl32.Vec4{0, 0, -5, 1})
	c.Assert(scene.CameraPos, qt.Equals, mgl32.Vec4{})
}

func TestMaterialBlocks(t *testing.T) {
	c := qt.New(t)
	m := uniforms.NewMaterial(mgl32.Vec3{0.1, 0.2, 0.3}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0.5, 0.5, 0.5}, 32)
	c.Assert(m.Diffuse, qt.Equals, mgl32.Vec4{1, 0, 0, 1})
	c.Assert(m.Emissive[3], qt.Equals, float32(1))
	c.Assert(m.Shininess, qt.Equals, float32(32))

	pbr := uniforms.NewMaterialPBR(mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 0.4, 0.9, 2)
	c.Assert(pbr.Albedo, qt.Equals, mgl32.Vec4{0, 1, 0, 1})
	c.Assert(pbr.Metalness, qt.Equals, float32(0.9))
	c.Assert(pbr.Lights, qt.Equals, int32(2))
}
