package domain

import (
	"time"
)

// Stage is a position in the negative-review recovery pipeline.
type Stage string

// Recovery stages. Updated is terminal; dismissed removes the case from
// active tracking without implying recovery.
const (
	StageReceived  Stage = "received"
	StageResponded Stage = "responded"
	StageContacted Stage = "contacted"
	StageReturned  Stage = "returned"
	StageUpdated   Stage = "updated"
	StageDismissed Stage = "dismissed"
)

// Action is an event that may move a recovery case between stages.
type Action string

// Recovery actions.
const (
	ActionRespond       Action = "respond"
	ActionFollowUp      Action = "follow_up"
	ActionMarkReturned  Action = "mark_returned"
	ActionRatingRevised Action = "rating_revised"
	ActionDismiss       Action = "dismiss"
	ActionReset         Action = "reset"
)

// HistoryEntry records one applied transition. History is append-only.
type HistoryEntry struct {
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Action Action    `json:"action"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// RecoveryCase tracks one negative review through recovery. Version is the
// compare-and-set token; every successful transition increments it.
type RecoveryCase struct {
	ID         string         `json:"id"`
	ReviewID   string         `json:"review_id"`
	BusinessID string         `json:"business_id"`
	Stage      Stage          `json:"stage"`
	History    []HistoryEntry `json:"history"`
	Version    int            `json:"version"`
	OpenedAt   time.Time      `json:"opened_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RecoveryCaseFilter narrows a recovery case listing.
type RecoveryCaseFilter struct {
	BusinessID string
	Stage      Stage
	Page       int
	PerPage    int
}

// RecoveryStats summarizes a business's recovery cases for compliance checks.
type RecoveryStats struct {
	Total         int           `json:"total"`
	ByStage       map[Stage]int `json:"by_stage"`
	StaleReceived int           `json:"stale_received"`
}

// Actioned returns the number of cases that moved past received.
func (s RecoveryStats) Actioned() int {
	return s.Total - s.ByStage[StageReceived]
}

// ValidStages returns all recovery stages.
func ValidStages() []Stage {
	return []Stage{StageReceived, StageResponded, StageContacted, StageReturned, StageUpdated, StageDismissed}
}

// IsValidStage checks whether s names a recovery stage.
func IsValidStage(s string) bool {
	for _, v := range ValidStages() {
		if string(v) == s {
			return true
		}
	}
	return false
}

// ValidActions returns all recovery actions.
func ValidActions() []Action {
	return []Action{ActionRespond, ActionFollowUp, ActionMarkReturned, ActionRatingRevised, ActionDismiss, ActionReset}
}

// IsValidAction checks whether a names a recovery action.
func IsValidAction(a string) bool {
	for _, v := range ValidActions() {
		if string(v) == a {
			return true
		}
	}
	return false
}
