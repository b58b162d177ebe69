package main

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/bloom/internal/input"
)

var keys = map[sdl.Keycode]input.Key{
	sdl.K_w:      input.KeyW,
	sdl.K_a:      input.KeyA,
	sdl.K_s:      input.KeyS,
	sdl.K_d:      input.KeyD,
	sdl.K_q:      input.KeyQ,
	sdl.K_e:      input.KeyE,
	sdl.K_LSHIFT: input.KeyShift,
	sdl.K_RSHIFT: input.KeyShift,
	sdl.K_LCTRL:  input.KeyCtrl,
	sdl.K_RCTRL:  input.KeyCtrl,
	sdl.K_1:      input.Key1,
	sdl.K_2:      input.Key2,
	sdl.K_3:      input.Key3,
	sdl.K_ESCAPE: input.KeyEscape,
}

func keyAction(e *sdl.KeyboardEvent) input.Action {
	switch {
	case e.Type == sdl.KEYUP:
		return input.Release
	case e.Repeat != 0:
		return input.Repeat
	}
	return input.Press
}

func buttonAction(e *sdl.MouseButtonEvent) input.Action {
	if e.Type == sdl.MOUSEBUTTONUP {
		return input.Release
	}
	return input.Press
}

// windowEvents is what the frame loop needs to know after a batch of events.
type windowEvents struct {
	quit    bool
	resized bool
}

// dispatch applies one SDL event to the input state.
func dispatch(event sdl.Event, state *input.State, out *windowEvents) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		out.quit = true
	case *sdl.KeyboardEvent:
		if key, ok := keys[e.Keysym.Sym]; ok {
			state.Key(key, keyAction(e))
		}
	case *sdl.MouseButtonEvent:
		if e.Button == sdl.BUTTON_RIGHT {
			state.RightButton(buttonAction(e))
		}
	case *sdl.MouseMotionEvent:
		state.MouseMove(float32(e.X), float32(e.Y))
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESTORED:
			out.resized = true
		}
	}
}
