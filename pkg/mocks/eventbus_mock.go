package mocks

import (
	"context"

	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/stretchr/testify/mock"
)

// MockEventBus records published events. Only the publishing side is mocked;
// subscriber tests run against the in-memory watermill bus.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	return m.Called(ctx, key, event).Error(0)
}

// Published returns the events passed to Publish, in call order.
func (m *MockEventBus) Published() []eventbus.Event {
	var published []eventbus.Event

	for _, call := range m.Calls {
		if call.Method == "Publish" {
			published = append(published, call.Arguments.Get(2).(eventbus.Event))
		}
	}

	return published
}
