package ui

// View is the UI description of one store snapshot. It holds no behavior;
// templates turn it into markup.
type View struct {
	Title    string
	Messages []MessageNode
	Typing   bool
	Input    InputNode
	Panel    PanelNode
	Version  uint64
}

type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleBot  MessageRole = "bot"
)

type MessageNode struct {
	ID      int
	Role    MessageRole
	Text    string
	HasHTML bool
}

// IsUser reports whether the bubble is right-aligned.
func (m MessageNode) IsUser() bool { return m.Role == RoleUser }

type InputNode struct {
	Placeholder string
	Disabled    bool
	Accept      string
}

// PanelNode never carries the fragment itself; the iframe loads it from Src.
type PanelNode struct {
	Title   string
	Open    bool
	Src     string
	Sandbox string
}
