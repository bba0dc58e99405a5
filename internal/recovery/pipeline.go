// Package recovery holds the negative-review recovery state machine. The
// transition table below is the only place stage changes are decided.
package recovery

import (
	"time"

	"github.com/google/uuid"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Policy decides which reviews enter recovery.
type Policy struct {
	NegativeRatingThreshold int
}

// ShouldOpen reports whether r needs a recovery case: it is negative and no
// response has been posted on the platform yet.
func (p Policy) ShouldOpen(r *domain.Review) bool {
	return r.IsNegative(p.NegativeRatingThreshold) && !r.PostedToPlatform
}

type edge struct {
	from   domain.Stage
	action domain.Action
}

var transitions = map[edge]domain.Stage{
	{domain.StageReceived, domain.ActionRespond}:       domain.StageResponded,
	{domain.StageReceived, domain.ActionFollowUp}:      domain.StageContacted,
	{domain.StageResponded, domain.ActionFollowUp}:     domain.StageContacted,
	{domain.StageContacted, domain.ActionMarkReturned}: domain.StageReturned,
	{domain.StageReturned, domain.ActionRatingRevised}: domain.StageUpdated,
	{domain.StageReceived, domain.ActionDismiss}:       domain.StageDismissed,
	{domain.StageDismissed, domain.ActionReset}:        domain.StageReceived,
	{domain.StageUpdated, domain.ActionReset}:          domain.StageReceived,
}

// Next returns the stage action leads to from from, or InvalidTransition.
func Next(from domain.Stage, action domain.Action) (domain.Stage, error) {
	to, ok := transitions[edge{from, action}]
	if !ok {
		return from, apperrors.InvalidTransition(string(from), string(action))
	}
	return to, nil
}

// Permitted reports whether from -> to via action is in the table.
func Permitted(from, to domain.Stage, action domain.Action) bool {
	got, ok := transitions[edge{from, action}]
	return ok && got == to
}

// AllowedActions lists the actions accepted in stage s.
func AllowedActions(s domain.Stage) []domain.Action {
	var out []domain.Action
	for _, a := range domain.ValidActions() {
		if _, ok := transitions[edge{s, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IsTerminal reports whether s is the recovered end state.
func IsTerminal(s domain.Stage) bool {
	return s == domain.StageUpdated
}

// Open creates the case for a newly admitted review in the received stage.
func Open(r *domain.Review, now time.Time) *domain.RecoveryCase {
	return &domain.RecoveryCase{
		ID:         uuid.New().String(),
		ReviewID:   r.ID,
		BusinessID: r.BusinessID,
		Stage:      domain.StageReceived,
		History:    []domain.HistoryEntry{},
		Version:    1,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
}

// Apply validates action against c's current stage and returns the updated
// copy with the transition appended to its history and the version bumped.
// c itself is left untouched, so a rejected action changes nothing.
func Apply(c *domain.RecoveryCase, action domain.Action, actor string, now time.Time) (*domain.RecoveryCase, domain.HistoryEntry, error) {
	to, err := Next(c.Stage, action)
	if err != nil {
		return nil, domain.HistoryEntry{}, err
	}

	entry := domain.HistoryEntry{
		From:   c.Stage,
		To:     to,
		Action: action,
		Actor:  actor,
		At:     now,
	}

	next := *c
	next.History = make([]domain.HistoryEntry, len(c.History), len(c.History)+1)
	copy(next.History, c.History)
	next.History = append(next.History, entry)
	next.Stage = to
	next.Version = c.Version + 1
	next.UpdatedAt = now
	return &next, entry, nil
}
