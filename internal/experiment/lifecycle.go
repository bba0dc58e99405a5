package experiment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// New creates an active experiment with empty samples.
func New(businessID, name, messageA, messageB string, autoPromote bool, now time.Time) *domain.Experiment {
	return &domain.Experiment{
		ID:          uuid.New().String(),
		BusinessID:  businessID,
		Name:        name,
		VariantA:    domain.Variant{MessageText: messageA},
		VariantB:    domain.Variant{MessageText: messageB},
		Status:      domain.ExperimentStatusActive,
		AutoPromote: autoPromote,
		Version:     1,
		StartedAt:   now,
	}
}

// NextVariant picks the arm for the next send. While active, sends balance
// toward the arm with fewer sends (A on ties). Once completed with a winner,
// every send goes to the winner.
func NextVariant(e *domain.Experiment) (domain.VariantKey, error) {
	if !e.IsActive() {
		if e.Winner == nil {
			return "", apperrors.Conflict(fmt.Sprintf("experiment %s completed without a winner", e.ID))
		}
		return *e.Winner, nil
	}
	if e.VariantB.Sent < e.VariantA.Sent {
		return domain.VariantB, nil
	}
	return domain.VariantA, nil
}

// RecordSend counts one send on arm k. Retired arms accept no sends.
func RecordSend(e *domain.Experiment, k domain.VariantKey) error {
	v := e.Variant(k)
	if v.Retired {
		return apperrors.Conflict(fmt.Sprintf("variant %s of experiment %s is retired", k, e.ID))
	}
	if !e.IsActive() && (e.Winner == nil || *e.Winner != k) {
		return apperrors.Conflict(fmt.Sprintf("experiment %s is completed", e.ID))
	}
	v.Sent++
	return nil
}

// RecordConversion counts one conversion on arm k. Conversions never exceed
// sends. Late conversions on a retired arm still count for audit.
func RecordConversion(e *domain.Experiment, k domain.VariantKey) error {
	v := e.Variant(k)
	if v.Converted >= v.Sent {
		return apperrors.InvalidInput(fmt.Sprintf("variant %s has %d conversions for %d sends", k, v.Converted, v.Sent))
	}
	v.Converted++
	return nil
}

// MaybePromote completes an active auto-promoting experiment once its leader
// is significant. It reports whether the experiment was completed.
func MaybePromote(e *domain.Experiment, p Policy, now time.Time) (Evaluation, bool) {
	ev := Evaluate(e.VariantA, e.VariantB, p)
	if !e.IsActive() || !e.AutoPromote || ev.Winner == nil {
		return ev, false
	}
	complete(e, ev.Winner, now)
	return ev, true
}

// Stop completes an active experiment. The leader is committed as winner
// only if significant; otherwise the experiment completes with no winner.
func Stop(e *domain.Experiment, p Policy, now time.Time) (Evaluation, error) {
	if !e.IsActive() {
		return Evaluation{}, apperrors.Conflict(fmt.Sprintf("experiment %s is already completed", e.ID))
	}
	ev := Evaluate(e.VariantA, e.VariantB, p)
	complete(e, ev.Winner, now)
	return ev, nil
}

func complete(e *domain.Experiment, winner *domain.VariantKey, now time.Time) {
	e.Status = domain.ExperimentStatusCompleted
	e.CompletedAt = &now
	if winner == nil {
		e.Winner = nil
		return
	}
	w := *winner
	e.Winner = &w
	if w == domain.VariantA {
		e.VariantB.Retired = true
	} else {
		e.VariantA.Retired = true
	}
}
