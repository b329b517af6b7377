package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const mountTimeout = 10 * time.Second

// Event is published on every navigation and notice.
type Event struct {
	Type   string    `json:"type"`
	Screen Screen    `json:"screen"`
	Notice *Notice   `json:"notice,omitempty"`
	At     time.Time `json:"at"`
}

// Event types.
const (
	EventNavigation = "navigation"
	EventNotice     = "notice"
)

// Observer receives session events. Observe must not block.
type Observer interface {
	Observe(Event)
}

// Snapshot is the whole renderable state of the active screen.
type Snapshot struct {
	Screen      Screen             `json:"screen"`
	Reference   *ReferenceState    `json:"reference,omitempty"`
	Verify      *VerifyState       `json:"verify,omitempty"`
	Result      *ResultMessage     `json:"result,omitempty"`
	Diagnostics *DiagnosticsReport `json:"diagnostics,omitempty"`
	Notice      *Notice            `json:"notice,omitempty"`
}

// Session is the application shell: it owns the active screen, builds a
// fresh controller on every transition and tears the previous one down.
type Session struct {
	deps      Deps
	logger    *zap.Logger
	observers []Observer

	mu          sync.Mutex
	route       Route
	started     bool
	reference   *ReferenceController
	verify      *VerifyController
	result      *ResultPresenter
	diagnostics *DiagnosticsProbe
	lastNotice  *Notice
}

// NewSession wires a session over deps.
func NewSession(deps Deps, observers ...Observer) *Session {
	return &Session{
		deps:      deps,
		logger:    deps.Logger.Named("session"),
		observers: observers,
	}
}

// Start enters the reference screen.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()
	return s.enter(ctx, Route{Screen: ScreenReference})
}

// Navigate implements Navigator, rejecting edges outside the screen graph.
func (s *Session) Navigate(ctx context.Context, to Screen, params Params) error {
	s.mu.Lock()
	from := s.route.Screen
	s.mu.Unlock()
	if !CanNavigate(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return s.enter(ctx, Route{Screen: to, Params: params})
}

// Notify implements Notifier: it records the notice and publishes it.
func (s *Session) Notify(n Notice) {
	s.mu.Lock()
	notice := n
	s.lastNotice = &notice
	screen := s.route.Screen
	s.mu.Unlock()
	s.publish(Event{Type: EventNotice, Screen: screen, Notice: &notice, At: time.Now().UTC()})
}

// Route returns the active route.
func (s *Session) Route() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Reference returns the reference controller when that screen is active.
func (s *Session) Reference() (*ReferenceController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route.Screen != ScreenReference || s.reference == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongScreen, ScreenReference)
	}
	return s.reference, nil
}

// Verify returns the verify controller when that screen is active.
func (s *Session) Verify() (*VerifyController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route.Screen != ScreenVerify || s.verify == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongScreen, ScreenVerify)
	}
	return s.verify, nil
}

// Result returns the success presenter when that screen is active.
func (s *Session) Result() (*ResultPresenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route.Screen != ScreenSuccess || s.result == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongScreen, ScreenSuccess)
	}
	return s.result, nil
}

// Diagnostics returns the probe when that screen is active.
func (s *Session) Diagnostics() (*DiagnosticsProbe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route.Screen != ScreenDiagnostics || s.diagnostics == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongScreen, ScreenDiagnostics)
	}
	return s.diagnostics, nil
}

// SwitchCamera toggles the facing on whichever capture screen is active.
func (s *Session) SwitchCamera() error {
	s.mu.Lock()
	ref, ver, screen := s.reference, s.verify, s.route.Screen
	s.mu.Unlock()
	switch {
	case screen == ScreenReference && ref != nil:
		ref.SwitchCamera()
	case screen == ScreenVerify && ver != nil:
		ver.SwitchCamera()
	default:
		return fmt.Errorf("%w: no camera on %s", ErrWrongScreen, screen)
	}
	return nil
}

// Snapshot renders the active screen.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	snap := Snapshot{Screen: s.route.Screen, Notice: s.lastNotice}
	ref, ver, res, diag := s.reference, s.verify, s.result, s.diagnostics
	s.mu.Unlock()

	switch snap.Screen {
	case ScreenReference:
		if ref != nil {
			st := ref.State()
			snap.Reference = &st
		}
	case ScreenVerify:
		if ver != nil {
			st := ver.State()
			snap.Verify = &st
		}
	case ScreenSuccess:
		if res != nil {
			msg := res.Render()
			snap.Result = &msg
		}
	case ScreenDiagnostics:
		if diag != nil {
			report := diag.Report(ctx)
			snap.Diagnostics = &report
		}
	}
	return snap
}

// Close tears down the active screen, cancelling anything pending.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) enter(ctx context.Context, route Route) error {
	// Mounting must outlive the caller: a controller navigating away cancels
	// its own attempt context as part of the transition.
	mountCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mountTimeout)
	defer cancel()

	s.mu.Lock()
	s.teardownLocked()
	s.route = route
	var mount func(context.Context) error
	switch route.Screen {
	case ScreenReference:
		s.reference = NewReferenceController(s.deps, s, s)
		mount = s.reference.Mount
	case ScreenVerify:
		s.verify = NewVerifyController(s.deps, s, s, route.Params)
		mount = s.verify.Mount
	case ScreenSuccess:
		s.result = NewResultPresenter(s)
	case ScreenDiagnostics:
		s.diagnostics = NewDiagnosticsProbe(s.deps.Camera, s.deps.Logger)
		mount = s.diagnostics.Mount
	}
	s.mu.Unlock()

	s.logger.Info("entered screen", zap.String("screen", string(route.Screen)))
	s.publish(Event{Type: EventNavigation, Screen: route.Screen, At: time.Now().UTC()})

	if mount == nil {
		return nil
	}
	if err := mount(mountCtx); err != nil {
		s.logger.Warn("screen mount incomplete", zap.String("screen", string(route.Screen)), zap.Error(err))
	}
	return nil
}

func (s *Session) teardownLocked() {
	if s.reference != nil {
		s.reference.exit()
		s.reference = nil
	}
	if s.verify != nil {
		s.verify.exit()
		s.verify = nil
	}
	s.result = nil
	s.diagnostics = nil
}

func (s *Session) publish(e Event) {
	for _, o := range s.observers {
		o.Observe(e)
	}
}
