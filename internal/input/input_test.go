package input_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/bloom/internal/input"
)

func near(got, want float32) bool {
	return mgl32.FloatEqualThreshold(got, want, 1e-5)
}

func TestDefaults(t *testing.T) {
	c := qt.New(t)
	s := input.NewState()
	c.Assert(s.Position, qt.Equals, mgl32.Vec3{0, 0, -5})
	c.Assert(s.Speed, qt.Equals, float32(5))
	c.Assert(s.Lights, qt.Equals, 1)
	c.Assert(s.MouseLook, qt.IsFalse)
}

func TestMovementScalesWithSpeed(t *testing.T) {
	c := qt.New(t)
	s := input.NewState()

	s.Key(input.KeyW, input.Press)
	c.Assert(near(s.Position[2], -4.95), qt.IsTrue)

	s.Key(input.KeyShift, input.Press)
	s.Key(input.KeyA, input.Repeat)
	c.Assert(near(s.Position[0], 0.2), qt.IsTrue)

	s.Key(input.KeyShift, input.Release)
	c.Assert(s.Speed, qt.Equals, float32(5))

	s.Key(input.KeyCtrl, input.Press)
	s.Key(input.KeyQ, input.Press)
	c.Assert(near(s.Position[1], 0.01), qt.IsTrue)

	s.Key(input.KeyCtrl, input.Release)
	c.Assert(s.Speed, qt.Equals, float32(2))
}

func TestLightCountKeys(t *testing.T) {
	c := qt.New(t)
	s := input.NewState()
	for _, tc := range []struct {
		key  input.Key
		want int
	}{{input.Key2, 2}, {input.Key3, 3}, {input.Key1, 1}} {
		s.Key(tc.key, input.Press)
		c.Assert(s.Lights, qt.Equals, tc.want)
	}
	s.Key(input.Key3, input.Release)
	c.Assert(s.Lights, qt.Equals, 1)
}

func TestMouseLook(t *testing.T) {
	c := qt.New(t)
	s := input.NewState()

	s.MouseMove(10, 10)
	s.MouseMove(20, 30)
	c.Assert(s.Rotation, qt.Equals, mgl32.Vec3{})

	s.RightButton(input.Press)
	s.MouseMove(25, 20)
	c.Assert(s.Rotation, qt.Equals, mgl32.Vec3{5, -10, 0})

	s.RightButton(input.Release)
	c.Assert(s.MouseLook, qt.IsTrue)
	s.RightButton(input.Press)
	s.MouseMove(100, 100)
	c.Assert(s.Rotation, qt.Equals, mgl32.Vec3{5, -10, 0})
}

func TestEscapeQuits(t *testing.T) {
	c := qt.New(t)
	s := input.NewState()
	s.Key(input.KeyEscape, input.Release)
	c.Assert(s.Quit, qt.IsFalse)
	s.Key(input.KeyEscape, input.Press)
	c.Assert(s.Quit, qt.IsTrue)
}
