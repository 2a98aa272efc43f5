package domain

import (
	"encoding/json"
	"strings"
)

// ApplyRequest is the caller's free-text input for one run. It is stored in
// MirrorRecord.Query so a queued run can be rebuilt after a restart, and it
// never holds credentials.
type ApplyRequest struct {
	Instructions string `json:"instructions,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Encode returns the Query representation of r.
func (r ApplyRequest) Encode() string {
	r.Instructions = strings.TrimSpace(r.Instructions)
	r.Notes = strings.TrimSpace(r.Notes)
	if r == (ApplyRequest{}) {
		return ""
	}
	b, _ := json.Marshal(r)
	return string(b)
}

// DecodeApplyRequest parses a Query value. Text that is not an encoded
// request is treated as notes.
func DecodeApplyRequest(query string) ApplyRequest {
	query = strings.TrimSpace(query)
	if query == "" {
		return ApplyRequest{}
	}
	var r ApplyRequest
	if strings.HasPrefix(query, "{") && json.Unmarshal([]byte(query), &r) == nil {
		return r
	}
	return ApplyRequest{Notes: query}
}
