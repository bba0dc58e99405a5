package domain

import (
	"time"
)

// Experiment status constants.
const (
	ExperimentStatusActive    = "active"
	ExperimentStatusCompleted = "completed"
)

// VariantKey identifies one arm of an experiment.
type VariantKey string

// Variant keys.
const (
	VariantA VariantKey = "A"
	VariantB VariantKey = "B"
)

// Variant is one message arm. Converted never exceeds Sent. A retired
// variant receives no further sends; its samples are kept for audit.
type Variant struct {
	MessageText string `json:"message_text"`
	Sent        int    `json:"sent"`
	Converted   int    `json:"converted"`
	Retired     bool   `json:"retired"`
}

// Experiment is a two-variant review-request message test.
type Experiment struct {
	ID          string      `json:"id"`
	BusinessID  string      `json:"business_id"`
	Name        string      `json:"name"`
	VariantA    Variant     `json:"variant_a"`
	VariantB    Variant     `json:"variant_b"`
	Status      string      `json:"status"`
	Winner      *VariantKey `json:"winner"`
	AutoPromote bool        `json:"auto_promote"`
	Version     int         `json:"version"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Variant returns a pointer to the named arm.
func (e *Experiment) Variant(k VariantKey) *Variant {
	if k == VariantB {
		return &e.VariantB
	}
	return &e.VariantA
}

// IsActive reports whether the experiment still accepts samples.
func (e *Experiment) IsActive() bool {
	return e.Status == ExperimentStatusActive
}

// IsValidVariant checks whether k names an arm.
func IsValidVariant(k string) bool {
	return k == string(VariantA) || k == string(VariantB)
}
