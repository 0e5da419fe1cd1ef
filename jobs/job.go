package jobs

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Job is one unit of deferred work.
type Job struct {
	ID        string          `json:"id"`
	DueAt     int64           `json:"dueAt"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// NewJob builds a job with a fresh time-sortable id. payload is JSON encoded.
func NewJob(jobType string, payload any, dueAt time.Time) (*Job, error) {
	if jobType == "" {
		return nil, errors.New("job type required")
	}
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:      id.String(),
		DueAt:   dueAt.UnixMilli(),
		Type:    jobType,
		Payload: raw,
	}, nil
}

// Due returns DueAt as a time.
func (j Job) Due() time.Time {
	return time.UnixMilli(j.DueAt)
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.New("job has no payload")
	}
	return json.Unmarshal(j.Payload, v)
}
