package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type trackerTestComponents struct {
	tracker   *Tracker
	outbounds *MockOutboundRepository
	actions   *MockActionRepository
	numbers   *MockNumberRepository
	users     *MockUserRepository
	gateway   *MockGatewayClient
	broker    *MockPublisher
}

func setupTrackerTest(t *testing.T) trackerTestComponents {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	outbounds := new(MockOutboundRepository)
	actions := new(MockActionRepository)
	numbers := new(MockNumberRepository)
	users := new(MockUserRepository)
	gatewayClient := new(MockGatewayClient)
	broker := new(MockPublisher)

	tracker := NewTracker(outbounds, actions, numbers, users, gatewayClient, broker, logger)
	return trackerTestComponents{
		tracker:   tracker,
		outbounds: outbounds,
		actions:   actions,
		numbers:   numbers,
		users:     users,
		gateway:   gatewayClient,
		broker:    broker,
	}
}

func trackerFixtures() (*domain.Number, *domain.Action, *domain.User, *domain.Outbound) {
	number := &domain.Number{
		ID:       "num-1",
		Value:    "+15551230000",
		Followup: strPtr("Thanks for listening."),
		Fallback: strPtr("Text HELP for options."),
		Reprompt: strPtr("Still there?"),
	}
	action := &domain.Action{
		ID:       "act-1",
		NumberID: number.ID,
		Keyword:  "call",
		AudioURL: strPtr("https://cdn.example.com/audio/story.mp3"),
	}
	user := &domain.User{ID: "user-1", PhoneNumber: "+15559870000"}
	outbound := &domain.Outbound{
		ID:             "out-1",
		NumberID:       number.ID,
		UserID:         user.ID,
		ActionID:       action.ID,
		ProviderCallID: "CA123",
		AnsweredBy:     domain.AnsweredByUnset,
	}
	return number, action, user, outbound
}

func TestTracker_OnAnsweredBy(t *testing.T) {
	ctx := context.Background()

	t.Run("HumanAnswerPlaysActionAudio", func(t *testing.T) {
		comps := setupTrackerTest(t)
		_, action, _, outbound := trackerFixtures()

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.outbounds.On("SetAnsweredBy", ctx, outbound.ID, domain.AnsweredByHuman).Return(nil).Once()

		doc, err := comps.tracker.OnAnsweredBy(ctx, "CA123", domain.AnsweredByHuman)
		require.NoError(t, err)
		require.NotNil(t, doc.Play)
		assert.Equal(t, *action.AudioURL, doc.Play.URL)
		assert.Nil(t, doc.Hangup)
		comps.outbounds.AssertExpectations(t)
	})

	t.Run("MachineAnswerHangsUp", func(t *testing.T) {
		comps := setupTrackerTest(t)
		_, _, _, outbound := trackerFixtures()

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetAnsweredBy", ctx, outbound.ID, domain.AnsweredByMachine).Return(nil).Once()

		doc, err := comps.tracker.OnAnsweredBy(ctx, "CA123", domain.AnsweredByMachine)
		require.NoError(t, err)
		assert.Nil(t, doc.Play)
		assert.NotNil(t, doc.Hangup)
		comps.actions.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		comps.outbounds.AssertExpectations(t)
	})

	t.Run("ClassificationPersistedEvenOnHangupBranch", func(t *testing.T) {
		comps := setupTrackerTest(t)
		_, _, _, outbound := trackerFixtures()

		// Unrecognized classifications take the hangup branch but are still
		// recorded verbatim.
		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetAnsweredBy", ctx, outbound.ID, domain.AnsweredBy("fax")).Return(nil).Once()

		doc, err := comps.tracker.OnAnsweredBy(ctx, "CA123", domain.AnsweredBy("fax"))
		require.NoError(t, err)
		assert.NotNil(t, doc.Hangup)
		comps.outbounds.AssertExpectations(t)
	})

	t.Run("UnknownCallIDIsFatal", func(t *testing.T) {
		comps := setupTrackerTest(t)

		comps.outbounds.On("GetByCallID", ctx, "CA404").Return(nil, domain.ErrOutboundNotFound).Once()

		_, err := comps.tracker.OnAnsweredBy(ctx, "CA404", domain.AnsweredByHuman)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrOutboundNotFound)
		comps.outbounds.AssertNotCalled(t, "SetAnsweredBy", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTracker_OnStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("MachineDispositionSendsNumberDefaultReprompt", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByMachine

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "42").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimReprompt", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, number.Value, user.PhoneNumber, "Still there?").Return("SM1", nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "42")
		require.NoError(t, err)
		assert.True(t, outbound.RepromptSent)
		assert.False(t, outbound.FollowupSent)
		comps.outbounds.AssertNotCalled(t, "ClaimFollowup", mock.Anything, mock.Anything)
		comps.gateway.AssertExpectations(t)
		comps.broker.AssertExpectations(t)
	})

	t.Run("HumanDispositionSendsFollowup", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByHuman

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "75").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimFollowup", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, number.Value, user.PhoneNumber, "Thanks for listening.").Return("SM2", nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "75")
		require.NoError(t, err)
		assert.True(t, outbound.FollowupSent)
		comps.outbounds.AssertNotCalled(t, "ClaimReprompt", mock.Anything, mock.Anything)
	})

	t.Run("ActionOverrideBeatsNumberDefault", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByUnknown
		action.Followup = strPtr("Here's that link: https://example.com/more")

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "12").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimFollowup", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, number.Value, user.PhoneNumber, *action.Followup).Return("SM3", nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "12")
		require.NoError(t, err)
		comps.gateway.AssertExpectations(t)
	})

	t.Run("UnsetClassificationTakesRepromptBranch", func(t *testing.T) {
		// Status callback beat the answered-by callback: unset is treated as
		// not-human/unknown until proven otherwise.
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		require.Equal(t, domain.AnsweredByUnset, outbound.AnsweredBy)

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "0").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimReprompt", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, number.Value, user.PhoneNumber, "Still there?").Return("SM4", nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "0")
		require.NoError(t, err)
		comps.outbounds.AssertNotCalled(t, "ClaimFollowup", mock.Anything, mock.Anything)
	})

	t.Run("LostClaimIsSilentNoOp", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByHuman

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "42").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimFollowup", ctx, outbound.ID).Return(false, nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "42")
		require.NoError(t, err)
		comps.gateway.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NoTextConfiguredIsSilentNoOp", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByMachine
		number.Reprompt = nil

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "42").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "42")
		require.NoError(t, err)
		comps.outbounds.AssertNotCalled(t, "ClaimReprompt", mock.Anything, mock.Anything)
		comps.gateway.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SendFailureAfterClaimSurfacesDispatchFailed", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByHuman

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "42").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimFollowup", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, number.Value, user.PhoneNumber, "Thanks for listening.").
			Return("", errors.New("gateway 503")).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "42")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrDispatchFailed)
		comps.broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownCallIDIsFatal", func(t *testing.T) {
		comps := setupTrackerTest(t)

		comps.outbounds.On("GetByCallID", ctx, "CA404").Return(nil, domain.ErrOutboundNotFound).Once()

		err := comps.tracker.OnStatus(ctx, "CA404", "42")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrOutboundNotFound)
		comps.outbounds.AssertNotCalled(t, "SetDuration", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AlphaSenderUsedAsFromForFollowup", func(t *testing.T) {
		comps := setupTrackerTest(t)
		number, action, user, outbound := trackerFixtures()
		outbound.AnsweredBy = domain.AnsweredByHuman
		number.AlphaID = true
		number.AlphaSender = "StoryLine"

		comps.outbounds.On("GetByCallID", ctx, "CA123").Return(outbound, nil).Once()
		comps.outbounds.On("SetDuration", ctx, outbound.ID, "42").Return(nil).Once()
		comps.actions.On("GetByID", ctx, action.ID).Return(action, nil).Once()
		comps.numbers.On("GetByID", ctx, number.ID).Return(number, nil).Once()
		comps.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
		comps.outbounds.On("ClaimFollowup", ctx, outbound.ID).Return(true, nil).Once()
		comps.gateway.On("SendMessage", ctx, "StoryLine", user.PhoneNumber, "Thanks for listening.").Return("SM5", nil).Once()
		comps.broker.On("Publish", ctx, dispositionSubject, mock.AnythingOfType("[]uint8")).Return(nil).Once()

		err := comps.tracker.OnStatus(ctx, "CA123", "42")
		require.NoError(t, err)
		comps.gateway.AssertExpectations(t)
	})
}

// casOutboundRepo is a minimal in-memory repository with real compare-and-set
// semantics, for exercising concurrent duplicate callbacks.
type casOutboundRepo struct {
	mu       sync.Mutex
	outbound domain.Outbound
}

func (r *casOutboundRepo) Create(ctx context.Context, outbound *domain.Outbound) error { return nil }

func (r *casOutboundRepo) GetByCallID(ctx context.Context, providerCallID string) (*domain.Outbound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outbound.ProviderCallID != providerCallID {
		return nil, domain.ErrOutboundNotFound
	}
	copied := r.outbound
	return &copied, nil
}

func (r *casOutboundRepo) SetAnsweredBy(ctx context.Context, id string, answeredBy domain.AnsweredBy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound.AnsweredBy = answeredBy
	return nil
}

func (r *casOutboundRepo) SetDuration(ctx context.Context, id, duration string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound.Duration = duration
	return nil
}

func (r *casOutboundRepo) ClaimFollowup(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outbound.FollowupSent {
		return false, nil
	}
	r.outbound.FollowupSent = true
	return true, nil
}

func (r *casOutboundRepo) ClaimReprompt(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outbound.RepromptSent {
		return false, nil
	}
	r.outbound.RepromptSent = true
	return true, nil
}

func (r *casOutboundRepo) FindMostRecentPendingCall(ctx context.Context, userID string) (*domain.Outbound, error) {
	return nil, domain.ErrNoPendingCall
}

type countingGateway struct {
	sends atomic.Int64
}

func (g *countingGateway) SendMessage(ctx context.Context, from, to, body string) (string, error) {
	g.sends.Add(1)
	return "SM", nil
}

func (g *countingGateway) PlaceCall(ctx context.Context, req gateway.CallRequest) (string, error) {
	return "CA", nil
}

// Concurrent duplicate deliveries of the same status callback must produce
// exactly one reprompt send: the claim is a compare-and-set, not a
// read-then-write flag check.
func TestTracker_ConcurrentDuplicateStatusCallbacks(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	number, action, user, outbound := trackerFixtures()
	outbound.AnsweredBy = domain.AnsweredByMachine

	repo := &casOutboundRepo{outbound: *outbound}
	gw := &countingGateway{}

	actions := new(MockActionRepository)
	actions.On("GetByID", mock.Anything, action.ID).Return(action, nil)
	numbers := new(MockNumberRepository)
	numbers.On("GetByID", mock.Anything, number.ID).Return(number, nil)
	users := new(MockUserRepository)
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	tracker := NewTracker(repo, actions, numbers, users, gw, nil, logger)

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := tracker.OnStatus(ctx, outbound.ProviderCallID, "42")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), gw.sends.Load())
	assert.True(t, repo.outbound.RepromptSent)
	assert.False(t, repo.outbound.FollowupSent)
}
