package model

import (
	"encoding/json"
	"time"
)

// ProcessStatus is the overall state of an import process.
type ProcessStatus string

// Process statuses.
const (
	StatusIncomplete ProcessStatus = "INCOMPLETE"
	StatusWaiting    ProcessStatus = "WAITING"
	StatusSucceeded  ProcessStatus = "SUCCEEDED"
	StatusFailed     ProcessStatus = "FAILED"
	StatusCrashed    ProcessStatus = "CRASHED"
	StatusRolledBack ProcessStatus = "ROLLEDBACK"
)

// Process is one import run with its configuration and step history.
type Process struct {
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
	Config      ImportConfig  `json:"config"`
	Name        string        `json:"name"`
	Status      ProcessStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	Files       []ImportFile  `json:"files,omitempty"`
	ID          int64         `json:"id"`
	CurrentStep int           `json:"currentStep"`
}

// ProcessStep records one state transition of a process. State, Action and
// Directions are stored in their JSON form.
type ProcessStep struct {
	Started    time.Time       `json:"started"`
	Finished   *time.Time      `json:"finished,omitempty"`
	State      json.RawMessage `json:"state"`
	Action     json.RawMessage `json:"action,omitempty"`
	Directions json.RawMessage `json:"directions,omitempty"`
	ProcessID  int64           `json:"processId"`
	Number     int             `json:"number"`
}
