package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/platform"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

type recoveryFixture struct {
	cases   *mockCaseRepository
	reviews *mockReviewRepository
	drafter *mockDrafter
	poster  *mockPoster
	pub     *recordingPublisher
	svc     *RecoveryService
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()
	f := &recoveryFixture{
		cases:   new(mockCaseRepository),
		reviews: new(mockReviewRepository),
		drafter: new(mockDrafter),
		poster:  new(mockPoster),
	}
	var producer *event.Producer
	producer, f.pub = newTestProducer()
	f.svc = NewRecoveryService(f.cases, f.reviews, f.drafter, f.poster, producer, newTestLogger())
	f.svc.now = clock
	return f
}

func caseAt(stage domain.Stage, version int) *domain.RecoveryCase {
	return &domain.RecoveryCase{
		ID:         "case-1",
		ReviewID:   "rev-1",
		BusinessID: "biz-1",
		Stage:      stage,
		History:    []domain.HistoryEntry{},
		Version:    version,
		OpenedAt:   fixedNow,
		UpdatedAt:  fixedNow,
	}
}

func negativeReview() *domain.Review {
	return &domain.Review{ID: "rev-1", BusinessID: "biz-1", Rating: 1, Text: "Cold food, rude staff.", Platform: domain.PlatformGoogle}
}

func TestTransition_Success(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByID", ctx, "case-1").Return(caseAt(domain.StageReceived, 1), nil)
	f.cases.On("ApplyTransition", ctx, mock.MatchedBy(func(n *domain.RecoveryCase) bool {
		return n.Stage == domain.StageContacted && n.Version == 2
	}), 1, domain.HistoryEntry{
		From: domain.StageReceived, To: domain.StageContacted, Action: domain.ActionFollowUp, Actor: "staff-1", At: fixedNow,
	}).Return(nil)

	c, err := f.svc.Transition(ctx, &TransitionInput{CaseID: "case-1", Action: "follow_up", Actor: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StageContacted, c.Stage)
	assert.Equal(t, []string{event.TopicRecoveryStageChanged}, f.pub.types())
	f.cases.AssertExpectations(t)
}

func TestTransition_InvalidTransitionLeavesCaseUnchanged(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	stored := caseAt(domain.StageReceived, 1)

	f.cases.On("GetByID", ctx, "case-1").Return(stored, nil)

	_, err := f.svc.Transition(ctx, &TransitionInput{CaseID: "case-1", Action: "mark_returned", Actor: "staff-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.Equal(t, domain.StageReceived, stored.Stage)
	assert.Equal(t, 1, stored.Version)
	f.cases.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.pub.types())
}

func TestTransition_ExpectedVersionMismatch(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByID", ctx, "case-1").Return(caseAt(domain.StageReceived, 3), nil)

	_, err := f.svc.Transition(ctx, &TransitionInput{CaseID: "case-1", Action: "dismiss", Actor: "staff-1", ExpectedVersion: intPtr(2)})
	assert.True(t, errors.Is(err, apperrors.ErrStaleWrite))
}

func TestTransition_LostRace(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByID", ctx, "case-1").Return(caseAt(domain.StageReceived, 1), nil)
	f.cases.On("ApplyTransition", ctx, mock.Anything, 1, mock.Anything).Return(apperrors.StaleWrite("recovery case", "case-1"))

	_, err := f.svc.Transition(ctx, &TransitionInput{CaseID: "case-1", Action: "dismiss", Actor: "staff-1"})
	assert.True(t, errors.Is(err, apperrors.ErrStaleWrite))
	assert.Empty(t, f.pub.types())
}

func TestTransition_InputValidation(t *testing.T) {
	f := newRecoveryFixture(t)

	_, err := f.svc.Transition(context.Background(), &TransitionInput{CaseID: "case-1", Action: "escalate", Actor: "staff-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = f.svc.Transition(context.Background(), &TransitionInput{CaseID: "case-1", Action: "dismiss"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRespond_EditPostsGivenText(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.reviews.On("GetByID", ctx, "rev-1").Return(negativeReview(), nil)
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReceived, 1), nil)
	f.poster.On("Post", ctx, platform.PostRequest{ReviewID: "rev-1", Platform: domain.PlatformGoogle, Response: "Please call us.", Actor: "staff-1"}).Return(nil)
	f.reviews.On("MarkPosted", ctx, "rev-1").Return(nil)
	f.cases.On("ApplyTransition", ctx, mock.Anything, 1, mock.Anything).Return(nil)

	res, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-1", Action: RespondEdit, Text: "Please call us.", Actor: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, "Please call us.", res.Response)
	assert.Equal(t, domain.StageResponded, res.Case.Stage)
	f.drafter.AssertNotCalled(t, "Draft", mock.Anything, mock.Anything)
}

func TestRespond_EditRequiresText(t *testing.T) {
	f := newRecoveryFixture(t)

	_, err := f.svc.Respond(context.Background(), &RespondInput{ReviewID: "rev-1", Action: RespondEdit, Actor: "staff-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRespond_RegenerateDoesNotAdvance(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.reviews.On("GetByID", ctx, "rev-1").Return(negativeReview(), nil)
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReceived, 1), nil)
	f.drafter.On("Draft", ctx, mock.MatchedBy(func(r platform.DraftRequest) bool { return r.Hint == "mention refund" })).Return("Sorry, a refund is on its way.", nil)

	res, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-1", Action: RespondRegenerate, Hint: "mention refund", Actor: "staff-1"})
	require.NoError(t, err)
	assert.False(t, res.Posted)
	assert.Equal(t, domain.StageReceived, res.Case.Stage)
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
	f.cases.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRespond_RejectedStageNeverReachesPlatform(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.reviews.On("GetByID", ctx, "rev-1").Return(negativeReview(), nil)
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageContacted, 3), nil)

	_, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-1", Action: RespondApprove, Text: "Thanks", Actor: "staff-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestRespond_PostFailureLeavesCase(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.reviews.On("GetByID", ctx, "rev-1").Return(negativeReview(), nil)
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReceived, 1), nil)
	f.poster.On("Post", ctx, mock.Anything).Return(apperrors.ServiceUnavailable("platform unavailable"))

	_, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-1", Action: RespondApprove, Text: "Thanks", Actor: "staff-1"})
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
	f.reviews.AssertNotCalled(t, "MarkPosted", mock.Anything, mock.Anything)
	f.cases.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRespond_NoCasePostsWithoutPipeline(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	positive := &domain.Review{ID: "rev-2", BusinessID: "biz-1", Rating: 5, Platform: domain.PlatformYelp}

	f.reviews.On("GetByID", ctx, "rev-2").Return(positive, nil)
	f.cases.On("GetByReviewID", ctx, "rev-2").Return(nil, apperrors.NotFound("recovery case", "rev-2"))
	f.poster.On("Post", ctx, platform.PostRequest{ReviewID: "rev-2", Platform: domain.PlatformYelp, Response: "Thank you!", Actor: "staff-1"}).Return(nil)
	f.reviews.On("MarkPosted", ctx, "rev-2").Return(nil)

	res, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-2", Action: RespondEdit, Text: "Thank you!", Actor: "staff-1"})
	require.NoError(t, err)
	assert.True(t, res.Posted)
	assert.Nil(t, res.Case)
	assert.Equal(t, "Thank you!", res.Response)
	f.cases.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.pub.types())
	f.poster.AssertExpectations(t)
}

func TestRespond_NoCaseAlreadyPosted(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	answered := &domain.Review{ID: "rev-3", BusinessID: "biz-1", Rating: 1, PostedToPlatform: true}

	f.reviews.On("GetByID", ctx, "rev-3").Return(answered, nil)
	f.cases.On("GetByReviewID", ctx, "rev-3").Return(nil, apperrors.NotFound("recovery case", "rev-3"))

	_, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-3", Action: RespondApprove, Text: "Sorry", Actor: "staff-1"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestRespond_CaseLookupFailure(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.reviews.On("GetByID", ctx, "rev-1").Return(negativeReview(), nil)
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(nil, errors.New("connection reset"))

	_, err := f.svc.Respond(ctx, &RespondInput{ReviewID: "rev-1", Action: RespondApprove, Actor: "staff-1"})
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestApplyRatingRevision_ReturnedCaseBecomesUpdated(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReturned, 4), nil)
	f.cases.On("ApplyTransition", ctx, mock.MatchedBy(func(n *domain.RecoveryCase) bool {
		return n.Stage == domain.StageUpdated
	}), 4, mock.Anything).Return(nil)

	require.NoError(t, f.svc.ApplyRatingRevision(ctx, "rev-1", 4, "collector"))
	f.cases.AssertExpectations(t)
}

func TestApplyRatingRevision_IgnoredOutsideReturned(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageResponded, 2), nil)

	require.NoError(t, f.svc.ApplyRatingRevision(ctx, "rev-1", 5, "collector"))
	f.cases.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyRatingRevision_NoCase(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByReviewID", ctx, "rev-9").Return(nil, apperrors.NotFound("recovery case", "rev-9"))

	assert.NoError(t, f.svc.ApplyRatingRevision(ctx, "rev-9", 5, "collector"))
}

func TestApplyRatingRevision_RetriesLostRace(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReturned, 4), nil).Once()
	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReturned, 5), nil).Once()
	f.cases.On("ApplyTransition", ctx, mock.Anything, 4, mock.Anything).Return(apperrors.StaleWrite("recovery case", "case-1")).Once()
	f.cases.On("ApplyTransition", ctx, mock.Anything, 5, mock.Anything).Return(nil).Once()

	require.NoError(t, f.svc.ApplyRatingRevision(ctx, "rev-1", 5, "collector"))
	f.cases.AssertExpectations(t)
}

func TestApplyRatingRevision_GivesUpAfterRepeatedRaces(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.cases.On("GetByReviewID", ctx, "rev-1").Return(caseAt(domain.StageReturned, 4), nil)
	f.cases.On("ApplyTransition", ctx, mock.Anything, 4, mock.Anything).Return(apperrors.StaleWrite("recovery case", "case-1"))

	err := f.svc.ApplyRatingRevision(ctx, "rev-1", 5, "collector")
	assert.True(t, errors.Is(err, apperrors.ErrStaleWrite))
	f.cases.AssertNumberOfCalls(t, "ApplyTransition", maxCASAttempts)
}

func TestListCases_DefaultsAndValidation(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.ListCases(ctx, domain.RecoveryCaseFilter{Stage: "lost"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	f.cases.On("List", ctx, domain.RecoveryCaseFilter{BusinessID: "biz-1", Page: 1, PerPage: 100}).
		Return([]domain.RecoveryCase{*caseAt(domain.StageReceived, 1)}, 1, nil)

	cases, total, err := f.svc.ListCases(ctx, domain.RecoveryCaseFilter{BusinessID: "biz-1", PerPage: 500})
	require.NoError(t, err)
	assert.Len(t, cases, 1)
	assert.Equal(t, 1, total)
}
