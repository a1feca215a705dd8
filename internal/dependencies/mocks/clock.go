// Package mocks provides test doubles for the injectable dependencies.
package mocks

import (
	"time"

	"github.com/mcoot/tradegame-bot/internal/dependencies/clock"
)

// MockClock is a Clock frozen at a settable instant. Advancing it is how
// tests cross the trade window and announcement schedule boundaries.
type MockClock struct {
	now time.Time
}

var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock frozen at t
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the frozen instant
func (c *MockClock) Now() time.Time {
	return c.now
}

// Advance moves the frozen instant forward by d
func (c *MockClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// Set moves the frozen instant to t
func (c *MockClock) Set(t time.Time) {
	c.now = t
}
