package chat

import "sync"

// Role identifies the sender of a conversation turn. The values match the
// roles the Gemini API expects in multi-turn contents.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// DefaultMaxTurns bounds a History created with a non-positive limit.
const DefaultMaxTurns = 20

// Turn is a single message in the conversation history.
type Turn struct {
	Role Role
	Text string
}

// History is an ordered, bounded conversation owned by its caller. Turns
// are trimmed in user/model pairs so the contents sent to the API keep
// alternating roles. The first exchange is kept as initial context unless
// the limit only leaves room for one exchange, in which case the latest
// one is kept.
type History struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// NewHistory creates a history holding at most maxTurns turns. An odd
// limit is rounded up to a whole number of exchanges.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxTurns%2 != 0 {
		maxTurns++
	}
	return &History{
		turns:    make([]Turn, 0, maxTurns),
		maxTurns: maxTurns,
	}
}

// Add appends turns in order, trimming as needed.
func (h *History) Add(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turns...)
	if len(h.turns) <= h.maxTurns {
		return
	}

	excess := len(h.turns) - h.maxTurns
	excess += excess % 2

	if h.maxTurns == 2 {
		h.turns = append([]Turn(nil), h.turns[excess:]...)
		return
	}

	trimmed := make([]Turn, 0, h.maxTurns)
	trimmed = append(trimmed, h.turns[:2]...)
	trimmed = append(trimmed, h.turns[2+excess:]...)
	h.turns = trimmed
}

// Turns returns a copy of the current turns.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]Turn, len(h.turns))
	copy(result, h.turns)
	return result
}

// Reset clears the history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = h.turns[:0]
}

// Len returns the number of turns held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.turns)
}
