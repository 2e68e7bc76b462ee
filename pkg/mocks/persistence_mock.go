package mocks

import (
	"context"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of persistence.Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	args := m.Called(ctx, nodeID, doc)

	return args.Error(0)
}

func (m *MockGateway) LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	args := m.Called(ctx, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.NodeDocument), args.Error(1)
}

func (m *MockGateway) DeleteNodeData(ctx context.Context, nodeID string) error {
	args := m.Called(ctx, nodeID)

	return args.Error(0)
}

func (m *MockGateway) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, nodeID, fileName, data)

	return args.String(0), args.Error(1)
}

func (m *MockGateway) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	args := m.Called(ctx, nodeID, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockGateway) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	args := m.Called(ctx, nodeID, fileName)

	return args.Error(0)
}

func (m *MockGateway) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockGateway) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
