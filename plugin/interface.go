// Package plugin defines scheduler plugins and the registry that drives
// their lifecycle.
package plugin

import (
	"context"
	"sync"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/pulse/schedule"
)

// Host is the part of a scheduler a plugin may use.
type Host interface {
	SchedulerName() string
	SchedulerInstanceID() string
	AddJobListener(l schedule.JobListener, matchers ...schedule.Matcher)
}

// Metadata describes a plugin.
type Metadata struct {
	Name        string
	Version     string
	Description string
	// HostVersion is a semver constraint on the recenthistory version,
	// e.g. ">= 0.2.0". Empty accepts any version.
	HostVersion string
}

// SchedulerPlugin is attached to a scheduler for its whole life.
//
// Initialize is called once before the scheduler starts, Start when it
// starts and Shutdown when it stops. Calls out of that order fail with
// ErrInvalidState.
type SchedulerPlugin interface {
	Metadata() Metadata
	Initialize(ctx context.Context, name string, host Host) error
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	State() State
}

// State is the lifecycle position of a plugin.
type State string

const (
	// StateUninitialized is the state of a freshly constructed plugin
	StateUninitialized State = "uninitialized"
	// StateInitialized follows a successful Initialize
	StateInitialized State = "initialized"
	// StateStarted follows a successful Start
	StateStarted State = "started"
	// StateShutdown is terminal
	StateShutdown State = "shutdown"
)

// ErrInvalidState is returned for lifecycle calls made out of order.
var ErrInvalidState = errors.ErrInvalidState

// Lifecycle tracks a plugin's State. Embed it to get State() for free.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == "" {
		return StateUninitialized
	}
	return l.state
}

// Transition runs fn when the plugin is in from and moves to to when fn
// succeeds. The state is held for the duration of fn so concurrent
// transitions serialize.
func (l *Lifecycle) Transition(from, to State, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.state
	if current == "" {
		current = StateUninitialized
	}
	if current != from {
		return errors.Wrapf(ErrInvalidState, "cannot move to %s from %s", to, current)
	}
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	l.state = to
	return nil
}
