package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status tracks an invoice through its lifecycle. Transitions only happen
// through Advance; call sites never write the field from arbitrary states.
type Status int

const (
	StatusPending    Status = iota // 待识别
	StatusProcessing               // 识别中
	StatusReview                   // 待审核
	StatusArchived                 // 已归档
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusReview:     "review",
	StatusArchived:   "archived",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsValid returns true if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// MarshalJSON renders the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, name)
}

// Event is something that happens to an invoice and may move it forward.
type Event string

const (
	EventStartRecognition     Event = "START_RECOGNITION"
	EventRecognitionSucceeded Event = "RECOGNITION_SUCCEEDED"
	EventRecognitionFailed    Event = "RECOGNITION_FAILED"
	EventArchive              Event = "ARCHIVE"
)

var (
	// ErrInvalidTransition is returned when an event is not permitted in the
	// current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a status value is not recognized.
	ErrInvalidStatus = errors.New("invalid status")
)

// A recognition failure still lands in review: the user corrects the fields
// by hand and the record remains archivable.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventStartRecognition: StatusProcessing,
	},
	StatusProcessing: {
		EventRecognitionSucceeded: StatusReview,
		EventRecognitionFailed:    StatusReview,
	},
	StatusReview: {
		EventArchive: StatusArchived,
	},
}

// Advance returns the status reached by applying event to current, or
// ErrInvalidTransition when the event is not permitted there. Archived is
// terminal.
func Advance(current Status, event Event) (Status, error) {
	if !current.IsValid() {
		return current, fmt.Errorf("%w: %s", ErrInvalidStatus, current)
	}
	next, ok := transitions[current][event]
	if !ok {
		return current, fmt.Errorf("%w: cannot apply %s in status %s", ErrInvalidTransition, event, current)
	}
	return next, nil
}

// CanAdvance returns true if the event is permitted in the current status.
func CanAdvance(current Status, event Event) bool {
	_, ok := transitions[current][event]
	return ok
}
