package mocks

import (
	"context"
	"sync"

	"github.com/mcoot/tradegame-bot/internal/platform"
)

// SentMessage records one outbound message
type SentMessage struct {
	// ReplyToken is set for replies, Recipient for pushes
	ReplyToken string
	Recipient  string
	Text       string
}

// MockPlatform is a platform client that records outbound messages
type MockPlatform struct {
	mu sync.Mutex

	Replies []SentMessage
	Pushes  []SentMessage

	// PushErr, when set, is returned from Push to simulate delivery failure
	PushErr error
}

// Ensure MockPlatform implements the client interface
var _ platform.Client = (*MockPlatform)(nil)

// NewMockPlatform creates a new MockPlatform
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

// Reply records a reply
func (m *MockPlatform) Reply(ctx context.Context, replyToken string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies = append(m.Replies, SentMessage{ReplyToken: replyToken, Text: text})
	return nil
}

// Push records a push, or fails if PushErr is set
func (m *MockPlatform) Push(ctx context.Context, userID string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushes = append(m.Pushes, SentMessage{Recipient: userID, Text: text})
	return nil
}

// LastPush returns the most recent push, if any
func (m *MockPlatform) LastPush() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Pushes) == 0 {
		return SentMessage{}, false
	}
	return m.Pushes[len(m.Pushes)-1], true
}
