package chat

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one entry of the chat history. HTMLContent is set only on bot
// messages that carry a renderable fragment.
type Message struct {
	ID          int     `json:"id"`
	Text        string  `json:"text"`
	Sender      Sender  `json:"sender"`
	HTMLContent *string `json:"html_content"`
}

// HasHTML reports whether the message carries a fragment for the side panel.
func (m Message) HasHTML() bool {
	return m.HTMLContent != nil
}

// HTML returns the fragment or the empty string.
func (m Message) HTML() string {
	if m.HTMLContent == nil {
		return ""
	}
	return *m.HTMLContent
}

func (m Message) clone() Message {
	out := m
	if m.HTMLContent != nil {
		html := *m.HTMLContent
		out.HTMLContent = &html
	}
	return out
}

// Snapshot is a consistent copy of a store taken inside one exclusive
// section. Version increases on every state change.
type Snapshot struct {
	Messages             []Message `json:"messages"`
	MessageCounter       int       `json:"message_counter"`
	IsProcessing         bool      `json:"is_processing"`
	ShowSidePanel        bool      `json:"show_side_panel"`
	SidePanelHTMLContent string    `json:"side_panel_html_content"`
	Version              uint64    `json:"version"`
}

// LastMessage returns the newest message, if any.
func (s Snapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func stringPtr(s string) *string {
	return &s
}
