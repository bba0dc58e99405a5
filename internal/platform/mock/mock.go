package mock

import (
	"context"
	"log/slog"

	"github.com/03aar/review-sub000/internal/platform"
)

// Drafter is a drafter implementation that returns a fixed apology template
// and always succeeds.
type Drafter struct {
	logger *slog.Logger
}

// NewDrafter creates a new mock drafter.
func NewDrafter(logger *slog.Logger) *Drafter {
	return &Drafter{logger: logger}
}

// Name returns the name of this drafter.
func (d *Drafter) Name() string {
	return "mock-drafter"
}

// Draft returns a templated response.
func (d *Drafter) Draft(ctx context.Context, req platform.DraftRequest) (string, error) {
	text := "Thank you for the feedback. We're sorry we missed the mark and would like to make it right."
	if req.Hint != "" {
		text += " " + req.Hint
	}

	d.logger.InfoContext(ctx, "mock drafter: response drafted",
		slog.String("review_id", req.ReviewID),
		slog.Int("rating", req.Rating),
	)
	return text, nil
}

// Poster is a poster implementation that logs responses and always succeeds.
type Poster struct {
	logger *slog.Logger
}

// NewPoster creates a new mock poster.
func NewPoster(logger *slog.Logger) *Poster {
	return &Poster{logger: logger}
}

// Name returns the name of this poster.
func (p *Poster) Name() string {
	return "mock-poster"
}

// Post logs the response.
func (p *Poster) Post(ctx context.Context, req platform.PostRequest) error {
	p.logger.InfoContext(ctx, "mock poster: response posted",
		slog.String("review_id", req.ReviewID),
		slog.String("platform", req.Platform),
		slog.String("actor", req.Actor),
	)
	return nil
}
