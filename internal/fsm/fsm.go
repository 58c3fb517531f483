// Package fsm defines the recording-session state machine and its transition rules.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
	// StateCancelled exists for wire compatibility with surface renderers;
	// cancel lands the store directly in idle and nothing transitions here.
	StateCancelled State = "cancelled"
)

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventCancel  Event = "cancel"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventRevert  Event = "revert"
	EventRetry   Event = "retry"
	EventDismiss Event = "dismiss"
)

// Known reports whether s is a defined session state.
func Known(s State) bool {
	switch s {
	case StateIdle, StateRecording, StateProcessing, StateReady, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateProcessing, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventSucceed:
			return StateReady, nil
		case EventFail:
			return StateError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		switch event {
		case EventRevert:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventRetry:
			return StateProcessing, nil
		case EventDismiss:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
