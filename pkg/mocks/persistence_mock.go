package mocks

import (
	"context"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockChainRepository is a mock implementation of persistence.ChainRepository.
type MockChainRepository struct {
	mock.Mock
}

func (m *MockChainRepository) GetAll(ctx context.Context) ([]*models.WorkflowChain, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowChain), args.Error(1)
}

func (m *MockChainRepository) GetByID(ctx context.Context, id string) (*models.WorkflowChain, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowChain), args.Error(1)
}

func (m *MockChainRepository) Save(ctx context.Context, chain *models.WorkflowChain) error {
	args := m.Called(ctx, chain)

	return args.Error(0)
}

func (m *MockChainRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	Chains    *MockChainRepository
	Instances *MockInstanceRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Chains:    &MockChainRepository{},
		Instances: &MockInstanceRepository{},
	}
}

func (m *MockPersistence) ChainRepository() persistence.ChainRepository {
	return m.Chains
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.Instances
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
