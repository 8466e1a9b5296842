package chat

import "context"

// Reply is the bot's answer to one user message.
type Reply struct {
	Text string
	HTML *string
}

// Responder maps the latest user text to a bot reply. Implementations may
// block; the store calls them outside its exclusive sections.
type Responder interface {
	Respond(ctx context.Context, text string) (Reply, error)
}
