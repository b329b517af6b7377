package flow

import (
	"context"
	"fmt"
)

// Screen names a navigation destination.
type Screen string

const (
	ScreenReference   Screen = "Reference"
	ScreenVerify      Screen = "Verify"
	ScreenSuccess     Screen = "Success"
	ScreenDiagnostics Screen = "Diagnostics"
)

// ParseScreen maps a case-sensitive name to a Screen.
func ParseScreen(name string) (Screen, error) {
	switch s := Screen(name); s {
	case ScreenReference, ScreenVerify, ScreenSuccess, ScreenDiagnostics:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown screen %q", ErrInvalidTransition, name)
}

// Params are the values carried by a transition.
type Params struct {
	Reference string
}

// Route is a screen plus the parameters it was entered with.
type Route struct {
	Screen Screen
	Params Params
}

// Navigator moves the flow to another screen.
type Navigator interface {
	Navigate(ctx context.Context, to Screen, params Params) error
}

// edges is the screen graph. Diagnostics is reachable from anywhere and leads
// back to the start; Verify may go back to Reference.
var edges = map[Screen][]Screen{
	ScreenReference:   {ScreenVerify, ScreenDiagnostics},
	ScreenVerify:      {ScreenSuccess, ScreenReference, ScreenDiagnostics},
	ScreenSuccess:     {ScreenReference, ScreenDiagnostics},
	ScreenDiagnostics: {ScreenReference},
}

// CanNavigate reports whether from -> to is an edge of the screen graph.
func CanNavigate(from, to Screen) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}
