package agent

// Role labels one conversation turn.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "observation"
)

// ActionCall records the action an assistant turn selected.
type ActionCall struct {
	ID    string
	Name  string
	Input string
}

// Turn is one entry of the conversation history. Assistant turns that
// selected an action carry Call; observation turns carry the CallID they
// answer.
type Turn struct {
	Role    Role
	Content string
	Call    *ActionCall
	CallID  string
}

// Memory is the session-owned, append-only conversation history. It is
// initialized at session start and lives until process exit; the full
// history is replayed to the reasoning engine on every step.
type Memory struct {
	turns []Turn
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(turns ...Turn) {
	m.turns = append(m.turns, turns...)
}

// Snapshot returns a copy so callers can extend it without mutating the
// committed history.
func (m *Memory) Snapshot() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	return len(m.turns)
}
