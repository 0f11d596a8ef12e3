// Package session implements the Session Supervisor of spec §4/§9: a
// process-wide registry of running sessions, each owned by exactly one
// background task that drives a cycle.Runner. Callers interact with a
// session only through explicit start/pause/resume/stop/status handles —
// never by reaching into the Runner's goroutine directly (spec §5
// single-writer discipline).
package session

import (
	"context"
	"sync"

	"dialectic/internal/cycle"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/domain"
	"dialectic/internal/eventbus"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunnerFactory builds the Runner for a newly started session. Supervisor
// depends on this instead of concrete constructors so tests can supply a
// Runner wired with fakes.
type RunnerFactory func(sessionID string) (*cycle.Runner, string, error)

// entry is the supervisor's private bookkeeping for one active session.
type entry struct {
	mu     sync.Mutex
	info   domain.SessionInfo
	runner *cycle.Runner
	cancel context.CancelFunc
}

// Supervisor owns every running session in this process.
type Supervisor struct {
	bus eventbus.Bus

	mu       sync.Mutex
	sessions map[string]*entry
}

// New constructs an empty Supervisor.
func New(bus eventbus.Bus) *Supervisor {
	return &Supervisor{bus: bus, sessions: make(map[string]*entry)}
}

// Start registers a new session and launches its owning task. It returns
// immediately; the Runner drives cycles on a background goroutine until it
// terminates or Stop is called.
func (s *Supervisor) Start(ctx context.Context, build RunnerFactory) (string, error) {
	sessionID := uuid.NewString()
	runner, blackboardID, err := build(sessionID)
	if err != nil {
		return "", dialecticerr.New(dialecticerr.Invariant, "session.Start", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		info: domain.SessionInfo{
			SessionID:    sessionID,
			BlackboardID: blackboardID,
			Status:       domain.StatusRunning,
		},
		runner: runner,
		cancel: cancel,
	}

	s.mu.Lock()
	s.sessions[sessionID] = e
	s.mu.Unlock()

	eventbus.PublishToSessionAndGlobal(ctx, s.bus, sessionID, eventbus.Event{
		Kind: "session_started",
		Data: map[string]any{"session_id": sessionID, "blackboard_id": blackboardID},
	})

	go s.drive(runCtx, sessionID, e)
	return sessionID, nil
}

// drive is the session's single owning goroutine: it runs the Runner to
// completion and records the terminal outcome (spec §5 "one parallel task
// per active session").
func (s *Supervisor) drive(ctx context.Context, sessionID string, e *entry) {
	outcome, err := e.runner.Run(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.info.Status = domain.StatusFailed
		e.info.LastError = err.Error()
		log.Error().Err(err).Str("session_id", sessionID).Msg("session run failed")
	} else {
		switch outcome {
		case cycle.OutcomeStopped:
			if e.info.Status != domain.StatusPaused {
				e.info.Status = domain.StatusStopped
			}
		default:
			e.info.Status = domain.StatusCompleted
		}
	}

	eventbus.PublishToSessionAndGlobal(context.Background(), s.bus, sessionID, eventbus.Event{
		Kind: "session_completed",
		Data: map[string]any{"session_id": sessionID, "status": e.info.Status, "outcome": string(outcome)},
	})
}

// Pause requests a pause. Because cycle.Runner currently exposes only
// cooperative stop (spec §5 "may be paused between any two states"), pause
// is implemented as a stop that preserves resumability: the caller is
// expected to Resume by starting a fresh Runner from the persisted
// Blackboard state (spec §4.1 load_state).
func (s *Supervisor) Pause(ctx context.Context, sessionID string) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.info.Status = domain.StatusPaused
	e.mu.Unlock()
	e.runner.RequestStop()

	eventbus.PublishToSessionAndGlobal(ctx, s.bus, sessionID, eventbus.Event{Kind: "session_paused", Data: sessionID})
	return nil
}

// Resume re-registers a new owning task for a previously paused session,
// built from a freshly loaded Blackboard (spec §4.1 load_state). The caller
// supplies the factory since only it knows how to reconstruct the Runner's
// dependencies (store, dispatcher, detector).
func (s *Supervisor) Resume(ctx context.Context, sessionID string, build func() (*cycle.Runner, error)) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	runner, err := build()
	if err != nil {
		return dialecticerr.New(dialecticerr.Invariant, "session.Resume", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.runner = runner
	e.cancel = cancel
	e.info.Status = domain.StatusRunning
	e.mu.Unlock()

	eventbus.PublishToSessionAndGlobal(ctx, s.bus, sessionID, eventbus.Event{Kind: "session_resumed", Data: sessionID})
	go s.drive(runCtx, sessionID, e)
	return nil
}

// Stop requests the session halt and cancels its run context (spec §5
// "external stop and pause signals interrupt between FSM states").
func (s *Supervisor) Stop(ctx context.Context, sessionID string) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.runner.RequestStop()
	e.cancel()

	eventbus.PublishToSessionAndGlobal(ctx, s.bus, sessionID, eventbus.Event{Kind: "session_stopped", Data: sessionID})
	return nil
}

// Status returns the session's current user-visible info (spec §7 "User-
// visible failures are surfaced as session status and the last error string
// on the session info record").
func (s *Supervisor) Status(sessionID string) (domain.SessionInfo, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info := e.info
	info.CycleCount = e.runner.CycleCount()
	info.SupportStrength = e.runner.SupportStrength()
	info.CurrentClaim = e.runner.CurrentClaim()
	return info, nil
}

// List returns every session's current status snapshot.
func (s *Supervisor) List() []domain.SessionInfo {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make([]domain.SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := s.Status(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

func (s *Supervisor) lookup(sessionID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, dialecticerr.New(dialecticerr.Validation, "session.lookup", errUnknownSession)
	}
	return e, nil
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errUnknownSession = staticErr("session: unknown session id")
