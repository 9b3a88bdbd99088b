package ui

import "karaoke-backend/internal/practice"

// EventMsg wraps an event published by the practice machine.
type EventMsg struct {
	Event practice.Event
}

// ActionErrorMsg reports a failed user action.
type ActionErrorMsg struct {
	Action string
	Err    error
}

// ClearErrorMsg clears the error bar after a timeout.
type ClearErrorMsg struct{}
