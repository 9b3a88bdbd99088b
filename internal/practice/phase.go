package practice

import (
	"fmt"

	"karaoke-backend/internal/recorder"
)

// Phase is the practice loop position of the current line.
type Phase int

const (
	Idle Phase = iota
	LinePlaying
	AwaitingRecording
	Recording
	Reviewing
	Complete
)

var phaseNames = [...]string{
	Idle:              "idle",
	LinePlaying:       "line_playing",
	AwaitingRecording: "awaiting_recording",
	Recording:         "recording",
	Reviewing:         "reviewing",
	Complete:          "complete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// EventKind identifies what changed.
type EventKind string

const (
	PhaseChanged         EventKind = "phase"
	LineChanged          EventKind = "line"
	Progress             EventKind = "progress"
	Status               EventKind = "status"
	RecorderAvailability EventKind = "recorder"
	ArtifactReady        EventKind = "artifact"
)

// Event is published to observers after each transition. Line is the
// highlighted line, -1 when nothing is highlighted.
type Event struct {
	Kind      EventKind          `json:"type"`
	Phase     Phase              `json:"phase"`
	Line      int                `json:"line"`
	Lines     int                `json:"lines"`
	Current   float64            `json:"current,omitempty"`
	Duration  float64            `json:"duration,omitempty"`
	Status    string             `json:"status,omitempty"`
	Available bool               `json:"available"`
	Artifact  *recorder.Artifact `json:"artifact,omitempty"`
}

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	Phase       Phase   `json:"phase"`
	Line        int     `json:"line"`
	Lines       int     `json:"lines"`
	Advancing   bool    `json:"advancing"`
	HasArtifact bool    `json:"has_artifact"`
	CanRecord   bool    `json:"can_record"`
	Source      string  `json:"source,omitempty"`
	Current     float64 `json:"current"`
	Duration    float64 `json:"duration"`
	Status      string  `json:"status,omitempty"`
}
