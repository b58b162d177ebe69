// Package input holds the camera and lighting state driven by keyboard and
// mouse events. The window layer translates its events into calls on State;
// the renderer only reads it.
package input

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Key int

const (
	KeyUnknown Key = iota
	KeyW
	KeyA
	KeyS
	KeyD
	KeyQ
	KeyE
	KeyShift
	KeyCtrl
	Key1
	Key2
	Key3
	KeyEscape
)

type Action int

const (
	Press Action = iota
	Repeat
	Release
)

const (
	stepPerUnit = 0.01

	speedDefault = 5
	speedFast    = 20
	speedSlow    = 1
	// speedAfterSlow is what releasing Ctrl leaves behind, which is not the
	// default speed.
	speedAfterSlow = 2

	MaxLights = 3
)

// State is the explicit replacement for process-wide camera globals. It is
// owned by the main loop and passed to the renderer each frame.
type State struct {
	Position  mgl32.Vec3
	Rotation  mgl32.Vec3
	Speed     float32
	Lights    int
	MouseLook bool
	Quit      bool

	mouseX, mouseY float32
	mouseSeen      bool
}

func NewState() *State {
	return &State{
		Position: mgl32.Vec3{0, 0, -5},
		Speed:    speedDefault,
		Lights:   1,
	}
}

// Key applies a keyboard event. Repeat is treated as Press.
func (s *State) Key(key Key, action Action) {
	if action == Release {
		switch key {
		case KeyShift:
			s.Speed = speedDefault
		case KeyCtrl:
			s.Speed = speedAfterSlow
		}
		return
	}

	step := stepPerUnit * s.Speed
	switch key {
	case KeyEscape:
		if action == Press {
			s.Quit = true
		}
	case KeyShift:
		s.Speed = speedFast
	case KeyCtrl:
		s.Speed = speedSlow
	case KeyW:
		s.Position[2] += step
	case KeyS:
		s.Position[2] -= step
	case KeyA:
		s.Position[0] += step
	case KeyD:
		s.Position[0] -= step
	case KeyE:
		s.Position[1] -= step
	case KeyQ:
		s.Position[1] += step
	case Key1:
		s.Lights = 1
	case Key2:
		s.Lights = 2
	case Key3:
		s.Lights = 3
	}
}

// RightButton toggles mouse-look on press.
func (s *State) RightButton(action Action) {
	if action == Press {
		s.MouseLook = !s.MouseLook
	}
}

// MouseMove records the cursor position and, while mouse-look is on,
// accumulates the movement into the rotation.
func (s *State) MouseMove(x, y float32) {
	if s.MouseLook && s.mouseSeen {
		s.Rotation[0] += x - s.mouseX
		s.Rotation[1] += y - s.mouseY
	}
	s.mouseX, s.mouseY = x, y
	s.mouseSeen = true
}
