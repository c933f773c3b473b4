// Package action provides user-defined automation: action definitions,
// the trigger-evaluation engine, and the daemon that owns the engine's
// lifecycle.
//
// Actions are persisted in the local SQLite store and evaluated against
// two trigger families: time-based ("every N minutes", "daily at 09:00")
// and event-based ("when task_moved occurs"). Execution is delegated to an
// injected Executor; each execution is independent and idempotency is the
// action's own responsibility, not the engine's.
package action

import (
	"fmt"
	"time"
)

// ScopeKind bounds which entities an action applies to.
type ScopeKind int

const (
	// ScopeGlobal actions apply regardless of board or task.
	ScopeGlobal ScopeKind = iota
	// ScopeBoard actions are bound to a single board.
	ScopeBoard
	// ScopeTask actions are bound to a single task.
	ScopeTask
)

// String returns a human-readable representation of the scope kind.
func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeBoard:
		return "board"
	case ScopeTask:
		return "task"
	default:
		return "unknown"
	}
}

// ParseScopeKind converts a stored scope string back to its kind.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch s {
	case "global":
		return ScopeGlobal, nil
	case "board":
		return ScopeBoard, nil
	case "task":
		return ScopeTask, nil
	default:
		return 0, fmt.Errorf("unknown scope kind %q", s)
	}
}

// Scope binds an action to its target. TargetID is empty for global scope.
// An action whose TargetID no longer resolves to a live board or task is
// orphaned and removed by reconciliation.
type Scope struct {
	Kind     ScopeKind
	TargetID string
}

// TriggerKind identifies the trigger family.
type TriggerKind int

const (
	// TriggerTime actions fire on a schedule.
	TriggerTime TriggerKind = iota
	// TriggerEvent actions fire when a declared event type occurs.
	TriggerEvent
)

// String returns a human-readable representation of the trigger kind.
func (k TriggerKind) String() string {
	switch k {
	case TriggerTime:
		return "time"
	case TriggerEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ParseTriggerKind converts a stored trigger string back to its kind.
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch s {
	case "time":
		return TriggerTime, nil
	case "event":
		return TriggerEvent, nil
	default:
		return 0, fmt.Errorf("unknown trigger kind %q", s)
	}
}

// Trigger is the condition under which an action is considered for
// execution. Time triggers carry either Every (an interval, whole seconds
// only — the store persists it at one-second resolution) or At (a clock
// time in HH:MM); event triggers carry the event types they declare
// interest in.
type Trigger struct {
	Kind   TriggerKind
	Every  time.Duration
	At     string
	Events []string
}

// Due reports whether a time trigger should fire now, given when it last
// fired (zero if never).
func (t Trigger) Due(now, lastFired time.Time) bool {
	if t.Kind != TriggerTime {
		return false
	}

	if t.Every > 0 {
		return lastFired.IsZero() || now.Sub(lastFired) >= t.Every
	}

	if t.At != "" {
		clock, err := time.Parse("15:04", t.At)
		if err != nil {
			return false
		}
		scheduled := time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if scheduled.After(now) {
			return false
		}
		return lastFired.Before(scheduled)
	}

	return false
}

// WantsEvent reports whether an event trigger declares interest in the
// given event type.
func (t Trigger) WantsEvent(eventType string) bool {
	if t.Kind != TriggerEvent {
		return false
	}
	for _, e := range t.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Definition is a user-defined automation rule. Definitions are created
// and edited outside this core and read by the engine at evaluation time.
type Definition struct {
	ID          string
	Type        string
	Scope       Scope
	Enabled     bool
	Trigger     Trigger
	Metadata    map[string]string
	LastFiredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the definition for storable, evaluable field values.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Type == "" {
		return fmt.Errorf("type is required")
	}
	if d.Scope.Kind != ScopeGlobal && d.Scope.TargetID == "" {
		return fmt.Errorf("%s scope requires a target id", d.Scope.Kind)
	}
	if d.Scope.Kind == ScopeGlobal && d.Scope.TargetID != "" {
		return fmt.Errorf("global scope must not carry a target id")
	}

	switch d.Trigger.Kind {
	case TriggerTime:
		if d.Trigger.Every <= 0 && d.Trigger.At == "" {
			return fmt.Errorf("time trigger requires an interval or a clock time")
		}
		if d.Trigger.Every > 0 && d.Trigger.At != "" {
			return fmt.Errorf("time trigger cannot have both an interval and a clock time")
		}
		if d.Trigger.Every > 0 && d.Trigger.Every%time.Second != 0 {
			return fmt.Errorf("interval %v is not a whole number of seconds", d.Trigger.Every)
		}
		if d.Trigger.At != "" {
			if _, err := time.Parse("15:04", d.Trigger.At); err != nil {
				return fmt.Errorf("invalid clock time %q: %w", d.Trigger.At, err)
			}
		}
	case TriggerEvent:
		if len(d.Trigger.Events) == 0 {
			return fmt.Errorf("event trigger requires at least one event type")
		}
	default:
		return fmt.Errorf("unknown trigger kind %d", d.Trigger.Kind)
	}

	return nil
}

// ScopeMatches reports whether the action's scope applies to the board
// and task identity carried by an event payload.
func (d *Definition) ScopeMatches(boardID, taskID string) bool {
	switch d.Scope.Kind {
	case ScopeGlobal:
		return true
	case ScopeBoard:
		return d.Scope.TargetID == boardID
	case ScopeTask:
		return d.Scope.TargetID == taskID
	default:
		return false
	}
}
