package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_PermittedTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   Event
		want    Status
	}{
		{"pending starts recognition", StatusPending, EventStartRecognition, StatusProcessing},
		{"processing succeeds into review", StatusProcessing, EventRecognitionSucceeded, StatusReview},
		{"processing failure also lands in review", StatusProcessing, EventRecognitionFailed, StatusReview},
		{"review archives", StatusReview, EventArchive, StatusArchived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.current, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdvance_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   Event
	}{
		{"archived is terminal", StatusArchived, EventStartRecognition},
		{"cannot archive before review", StatusPending, EventArchive},
		{"cannot re-enter processing from review", StatusReview, EventStartRecognition},
		{"cannot skip recognition", StatusPending, EventRecognitionSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.current, tt.event)
			require.ErrorIs(t, err, ErrInvalidTransition)
			// Status is left unchanged on rejection.
			assert.Equal(t, tt.current, got)
		})
	}
}

func TestAdvance_InvalidStatus(t *testing.T) {
	_, err := Advance(Status(42), EventArchive)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCanAdvance(t *testing.T) {
	assert.True(t, CanAdvance(StatusReview, EventArchive))
	assert.False(t, CanAdvance(StatusArchived, EventArchive))
}

func TestStatus_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StatusReview)
	require.NoError(t, err)
	assert.Equal(t, `"review"`, string(data))

	var s Status
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, StatusReview, s)

	err = json.Unmarshal([]byte(`"nope"`), &s)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
