package gesture

import "box-annotator/pkg/geometry"

// Button is the pointer button that changed state.
type Button int

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	// ModToggle is Ctrl (Cmd on macOS).
	ModToggle Modifiers = 1 << iota
	// ModAdditive is Shift.
	ModAdditive
)

// Has reports whether m includes all of o.
func (m Modifiers) Has(o Modifiers) bool { return m&o == o }

// PointerEvent is a pointer event in screen coordinates of the canvas.
type PointerEvent struct {
	Position  geometry.Point2D
	Button    Button
	Modifiers Modifiers
}

// WheelEvent is a scroll-wheel event; positive Delta is wheel-forward.
type WheelEvent struct {
	Position geometry.Point2D
	Delta    float64
}

// Key is a keyboard key the controller understands.
type Key int

const (
	KeyUnknown Key = iota
	KeyDelete
	KeyZ
	KeyY
	KeyC
	KeyV
)

// KeyEvent is a key press.
type KeyEvent struct {
	Key       Key
	Modifiers Modifiers
}

// Mode is the active interaction mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModePanning
	ModeCreatingBox
	ModeResizing
	ModeDraggingGroup
	ModeMarqueeSelecting
)

var modeNames = [...]string{
	ModeIdle:             "idle",
	ModePanning:          "panning",
	ModeCreatingBox:      "creating",
	ModeResizing:         "resizing",
	ModeDraggingGroup:    "dragging",
	ModeMarqueeSelecting: "marquee",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}
