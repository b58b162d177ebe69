// Package uniforms builds the CPU-side images of the shader uniform blocks.
// Field order and types match the std140-compatible layout the shaders
// declare; every block is a whole number of 4-byte words and small enough for
// an inline buffer update.
package uniforms

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"

	"github.com/vkngwrapper/bloom/internal/input"
)

// MaxUpdateSize is the largest payload an inline buffer update accepts.
const MaxUpdateSize = 65536

const (
	nearPlane = 0.1
	farPlane  = 100.0
	// rotationScale converts accumulated mouse movement into radians.
	rotationScale = 0.005
)

type SceneUniform struct {
	Camera     mgl32.Mat4
	Projection mgl32.Mat4
	ProjCam    mgl32.Mat4
	CameraPos  mgl32.Vec4
	LightPos   [input.MaxLights]mgl32.Vec4
	LightColor [input.MaxLights]mgl32.Vec4
	Rotation   mgl32.Mat4
	Lights     int32
}

type MaterialUniform struct {
	Emissive  mgl32.Vec4
	Diffuse   mgl32.Vec4
	Specular  mgl32.Vec4
	Shininess float32
}

type MaterialPBRUniform struct {
	Emissive  mgl32.Vec4
	Albedo    mgl32.Vec4
	Shininess float32
	Metalness float32
	Lights    int32
}

// Compile-time size limits: a negative array length or an out of range
// constant index fails the build.
var (
	_ [MaxUpdateSize - unsafe.Sizeof(SceneUniform{})]struct{}
	_ [MaxUpdateSize - unsafe.Sizeof(MaterialUniform{})]struct{}
	_ [MaxUpdateSize - unsafe.Sizeof(MaterialPBRUniform{})]struct{}

	_ = [1]struct{}{}[unsafe.Sizeof(SceneUniform{})%4]
	_ = [1]struct{}{}[unsafe.Sizeof(MaterialUniform{})%4]
	_ = [1]struct{}{}[unsafe.Sizeof(MaterialPBRUniform{})%4]
)

var (
	lightPositions = [input.MaxLights]mgl32.Vec4{
		{0, 9.3, -3, 1},
		{0, 9.3, -3, 1},
		{0, 9.3, -3, 1},
	}
	lightColors = [input.MaxLights]mgl32.Vec4{
		{1, 1, 0.8, 1},
		{0, 1, 0, 1},
		{0, 0, 1, 1},
	}
)

// CheckUpdateSize validates a payload size against the inline update rules.
func CheckUpdateSize(n int) error {
	if n <= 0 {
		return errors.AssertionFailedf("uniform block of %d bytes", n)
	}
	if n > MaxUpdateSize {
		return errors.AssertionFailedf("uniform block of %d bytes exceeds the %d byte inline update limit", n, MaxUpdateSize)
	}
	if n%4 != 0 {
		return errors.AssertionFailedf("uniform block of %d bytes is not a multiple of 4", n)
	}
	return nil
}

// Encode serializes a uniform block in the device byte order after checking
// its size.
func Encode(block any) ([]byte, error) {
	n := binary.Size(block)
	if n < 0 {
		return nil, errors.AssertionFailedf("%T is not a fixed-size uniform block", block)
	}
	if err := CheckUpdateSize(n); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, n))
	if err := binary.Write(buf, common.ByteOrder, block); err != nil {
		return nil, errors.Wrapf(err, "encode %T", block)
	}
	return buf.Bytes(), nil
}

// Perspective is a right-handed projection with a zero-to-one depth range and
// a flipped Y axis, matching Vulkan clip space.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	tanHalf := float32(math.Tan(float64(fovy) / 2))
	var m mgl32.Mat4
	m[0] = 1 / (aspect * tanHalf)
	m[5] = -1 / tanHalf
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = -(far * near) / (far - near)
	return m
}

// RotationMatrix is the XYZ Euler rotation derived from accumulated mouse
// movement. Horizontal movement turns about Y and vertical about X.
func RotationMatrix(rotation mgl32.Vec3) mgl32.Mat4 {
	x := rotation[1] * rotationScale
	y := rotation[0] * rotationScale
	z := rotation[2] * rotationScale
	return mgl32.HomogRotate3DX(x).Mul4(mgl32.HomogRotate3DY(y)).Mul4(mgl32.HomogRotate3DZ(z))
}

// NewScene fills the scene block for a framebuffer of the given size.
func NewScene(state *input.State, width, height int, fovDegrees float32) SceneUniform {
	aspect := float32(width) / float32(height)
	rotation := RotationMatrix(state.Rotation)
	camera := mgl32.Translate3D(state.Position[0], state.Position[1], state.Position[2]).Mul4(rotation)
	projection := Perspective(mgl32.DegToRad(fovDegrees), aspect, nearPlane, farPlane)

	return SceneUniform{
		Camera:     camera,
		Projection: projection,
		ProjCam:    projection.Mul4(camera),
		CameraPos:  mgl32.Vec4{},
		LightPos:   lightPositions,
		LightColor: lightColors,
		Rotation:   rotation,
		Lights:     int32(clampLights(state.Lights)),
	}
}

func NewMaterial(emissive, diffuse, specular mgl32.Vec3, shininess float32) MaterialUniform {
	return MaterialUniform{
		Emissive:  emissive.Vec4(1),
		Diffuse:   diffuse.Vec4(1),
		Specular:  specular.Vec4(1),
		Shininess: shininess,
	}
}

func NewMaterialPBR(emissive, albedo mgl32.Vec3, shininess, metalness float32, lights int) MaterialPBRUniform {
	return MaterialPBRUniform{
		Emissive:  emissive.Vec4(1),
		Albedo:    albedo.Vec4(1),
		Shininess: shininess,
		Metalness: metalness,
		Lights:    int32(clampLights(lights)),
	}
}

func clampLights(n int) int {
	if n < 0 {
		return 0
	}
	if n > input.MaxLights {
		return input.MaxLights
	}
	return n
}
