package mocks

import "github.com/mcoot/tradegame-bot/internal/dependencies/random"

// MockRandom returns queued values so tests can pin the IDs that teams,
// credentials and trade proposals receive. An exhausted queue yields
// zero values.
type MockRandom struct {
	ints    []int
	strings []string
}

var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a MockRandom with empty queues
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// QueueIntn queues values for Intn to return in order
func (r *MockRandom) QueueIntn(values ...int) {
	r.ints = append(r.ints, values...)
}

// QueueString queues values for String to return in order
func (r *MockRandom) QueueString(values ...string) {
	r.strings = append(r.strings, values...)
}

// Intn pops the next queued int
func (r *MockRandom) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v
}

// String pops the next queued string
func (r *MockRandom) String(length int, alphabet string) string {
	if len(r.strings) == 0 {
		return ""
	}
	v := r.strings[0]
	r.strings = r.strings[1:]
	return v
}

// Reset drops any remaining queued values
func (r *MockRandom) Reset() {
	r.ints = nil
	r.strings = nil
}
