package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockChatClient is a mock implementation of the groq.ChatClient interface
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) ChatComplete(ctx context.Context, apiKey, prompt string) (string, error) {
	args := m.Called(ctx, apiKey, prompt)
	return args.String(0), args.Error(1)
}
