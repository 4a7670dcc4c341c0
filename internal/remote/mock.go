package remote

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of Store for orchestrator and content
// manager tests.
type MockStore struct {
	mock.Mock
}

// NewMockStore creates a mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Upload(ctx context.Context, data []byte) (*UploadInfo, error) {
	args := m.Called(ctx, data)
	if info := args.Get(0); info != nil {
		return info.(*UploadInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Download(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) GetMetadata(ctx context.Context) (*Metadata, error) {
	args := m.Called(ctx)
	if meta := args.Get(0); meta != nil {
		return meta.(*Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListContentFiles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if keys := args.Get(0); keys != nil {
		return keys.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) UploadContentFile(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockStore) DownloadContentFile(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) DeleteContentFile(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStore) EnsureContentFolder(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStore) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockStore) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
