package bot

import (
	"time"

	"github.com/aegion/docbot/pkg/session"
)

// Mode is the process-wide engagement indicator. It is derived from the
// session store and never set directly.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEngaged
)

func (m Mode) String() string {
	if m == ModeEngaged {
		return "Engaged"
	}
	return "Idle"
}

// ModeFor derives the mode from the number of active sessions.
func ModeFor(activeSessions int) Mode {
	if activeSessions > 0 {
		return ModeEngaged
	}
	return ModeIdle
}

// event drives stage transitions within an active session.
type event int

const (
	eventProfileComplete event = iota
	eventDiagnosisComplete
)

func (e event) String() string {
	switch e {
	case eventProfileComplete:
		return "profile_complete"
	case eventDiagnosisComplete:
		return "diagnosis_complete"
	default:
		return "unknown"
	}
}

var transitions = map[session.Stage]map[event]session.Stage{
	session.StageIntake: {
		eventProfileComplete: session.StageDiagnosis,
	},
	session.StageDiagnosis: {
		eventDiagnosisComplete: session.StageComplete,
	},
}

// nextStage looks up the transition for ev from stage.
func nextStage(stage session.Stage, ev event) (session.Stage, bool) {
	next, ok := transitions[stage][ev]
	return next, ok
}

// Status is a point-in-time view of the bot for ops endpoints.
type Status struct {
	Mode           string `json:"mode"`
	ActiveSessions int    `json:"active_sessions"`
	HistoryLength  int    `json:"history_length"`
	ControlHeld    bool   `json:"control_held"`
	Controller     string `json:"controller,omitempty"`
	PendingRelay   int    `json:"pending_relay"`
}

// SessionStatus is one user's consultation as seen by ops endpoints.
type SessionStatus struct {
	UserID           string    `json:"user_id"`
	Active           bool      `json:"active"`
	Stage            string    `json:"stage"`
	UpdatedAt        time.Time `json:"updated_at"`
	DiagnosisStarted bool      `json:"diagnosis_started"`
	Symptoms         int       `json:"symptoms"`
	Candidates       int       `json:"candidates"`
}
