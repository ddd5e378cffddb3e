package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidRecord   = errors.New("invalid session record")
)

// Record is one captured assessment session. Data holds the full decoded
// JSON document, including the identifying fields.
type Record struct {
	SessionID    string
	AssessmentID string
	Data         map[string]interface{}
	CreatedAt    time.Time
}

// Summary is the listing form of a record.
type Summary struct {
	SessionID    string `json:"session_id"`
	AssessmentID string `json:"assessment_id"`
}

// Summary returns the record's listing form.
func (r *Record) Summary() Summary {
	return Summary{SessionID: r.SessionID, AssessmentID: r.AssessmentID}
}

// MarshalJSON emits the raw document.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Data)
}

// ParseRecord decodes a raw session document. It must be a JSON object with
// non-empty string session_id and assessment_id fields.
func ParseRecord(raw []byte) (*Record, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return NewRecord(data)
}

// NewRecord validates an already decoded document.
func NewRecord(data map[string]interface{}) (*Record, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidRecord)
	}
	sid, err := idField(data, "session_id")
	if err != nil {
		return nil, err
	}
	aid, err := idField(data, "assessment_id")
	if err != nil {
		return nil, err
	}
	return &Record{SessionID: sid, AssessmentID: aid, Data: data}, nil
}

func idField(data map[string]interface{}, name string) (string, error) {
	v, ok := data[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRecord, name)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidRecord, name)
	}
	return s, nil
}
