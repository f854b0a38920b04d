package models

import "time"

// VerificationRecord is one completed verification as persisted to history.
type VerificationRecord struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id,omitempty"`
	Claim         string        `json:"claim"`
	Verdict       string        `json:"verdict"`
	Confidence    float64       `json:"confidence"`
	Rationale     string        `json:"rationale"`
	Escalated     bool          `json:"escalated"`
	InternalCount int           `json:"internal_count"`
	ExternalCount int           `json:"external_count"`
	DurationMS    int64         `json:"duration_ms"`
	CreatedAt     time.Time     `json:"created_at"`
	Evidence      []EvidenceRef `json:"evidence,omitempty"`
}

// EvidenceRef records one cited evidence item for a verification.
type EvidenceRef struct {
	VerificationID string `json:"verification_id"`
	EvidenceID     string `json:"evidence_id"`
	SourceURL      string `json:"source_url,omitempty"`
	Origin         string `json:"origin"`
	Role           string `json:"role"`
	Snippet        string `json:"snippet,omitempty"`
}
