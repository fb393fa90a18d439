package app

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
)

type MockNumberRepository struct {
	mock.Mock
}

func (m *MockNumberRepository) GetByValue(ctx context.Context, value string) (*domain.Number, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Number), args.Error(1)
}

func (m *MockNumberRepository) GetByID(ctx context.Context, id string) (*domain.Number, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Number), args.Error(1)
}

type MockActionRepository struct {
	mock.Mock
}

func (m *MockActionRepository) GetByKeyword(ctx context.Context, numberID, keyword string) (*domain.Action, error) {
	args := m.Called(ctx, numberID, keyword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Action), args.Error(1)
}

func (m *MockActionRepository) GetByID(ctx context.Context, id string) (*domain.Action, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Action), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetOrCreateByPhoneNumber(ctx context.Context, phoneNumber string) (*domain.User, error) {
	args := m.Called(ctx, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) SetSubscribed(ctx context.Context, id string, subscribed bool) error {
	args := m.Called(ctx, id, subscribed)
	return args.Error(0)
}

type MockInboundRepository struct {
	mock.Mock
}

func (m *MockInboundRepository) Create(ctx context.Context, inbound *domain.Inbound) error {
	args := m.Called(ctx, inbound)
	return args.Error(0)
}

func (m *MockInboundRepository) AttachAction(ctx context.Context, inboundID, actionID string) error {
	args := m.Called(ctx, inboundID, actionID)
	return args.Error(0)
}

type MockOutboundRepository struct {
	mock.Mock
}

func (m *MockOutboundRepository) Create(ctx context.Context, outbound *domain.Outbound) error {
	args := m.Called(ctx, outbound)
	return args.Error(0)
}

func (m *MockOutboundRepository) GetByCallID(ctx context.Context, providerCallID string) (*domain.Outbound, error) {
	args := m.Called(ctx, providerCallID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Outbound), args.Error(1)
}

func (m *MockOutboundRepository) SetAnsweredBy(ctx context.Context, id string, answeredBy domain.AnsweredBy) error {
	args := m.Called(ctx, id, answeredBy)
	return args.Error(0)
}

func (m *MockOutboundRepository) SetDuration(ctx context.Context, id, duration string) error {
	args := m.Called(ctx, id, duration)
	return args.Error(0)
}

func (m *MockOutboundRepository) ClaimFollowup(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboundRepository) ClaimReprompt(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboundRepository) FindMostRecentPendingCall(ctx context.Context, userID string) (*domain.Outbound, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Outbound), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) SendMessage(ctx context.Context, from, to, body string) (string, error) {
	args := m.Called(ctx, from, to, body)
	return args.String(0), args.Error(1)
}

func (m *MockGatewayClient) PlaceCall(ctx context.Context, req gateway.CallRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func strPtr(s string) *string {
	return &s
}
