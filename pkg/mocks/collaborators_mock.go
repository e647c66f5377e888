package mocks

import (
	"context"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of notification.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Send(ctx context.Context, n notification.Notification) error {
	args := m.Called(ctx, n)

	return args.Error(0)
}

// MockAuditSink is a mock implementation of audit.Sink.
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Log(ctx context.Context, entry audit.Entry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}
