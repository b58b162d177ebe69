package gpu

import "fmt"

// Status is the outcome of an acquire or present.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal means the operation worked but the swapchain no longer
	// matches the surface.
	StatusSuboptimal
	// StatusOutOfDate means the swapchain can no longer be used.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusSuboptimal:
		return "Suboptimal"
	case StatusOutOfDate:
		return "OutOfDate"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Stale reports whether the swapchain needs to be rebuilt.
func (s Status) Stale() bool {
	return s == StatusSuboptimal || s == StatusOutOfDate
}

// Error is a failed GPU API call. It is always fatal to the renderer.
type Error struct {
	Op     string
	Status string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s() returned %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s() returned %s", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }
