package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"htmlchat/internal/chat"
)

const replyPrompt = `You are a UI assistant inside a chat that can preview HTML.
Answer the user's message with a JSON object {"reply": string, "html": string}.
"reply" is one short sentence. "html" is a self-contained HTML fragment using
Tailwind utility classes, or "" when no fragment fits the request.

[USER MESSAGE]
`

// GeminiResponder asks a Gemini model for a reply and an optional HTML
// fragment. It makes exactly one call; retries and fallback are layered on
// with Wrap.
type GeminiResponder struct {
	cli   *genai.Client
	model string
}

func NewGeminiResponder(ctx context.Context, apiKey, model string) (*GeminiResponder, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiResponder{cli: cli, model: model}, nil
}

func (g *GeminiResponder) Respond(ctx context.Context, text string) (chat.Reply, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: replyPrompt + text}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("gemini generate: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return chat.Reply{}, NewPermanentError(fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return chat.Reply{}, fmt.Errorf("%w: no candidates", ErrInvalidJSON)
	}
	return parseReply(resp.Candidates[0].Content.Parts[0].Text)
}

type modelReply struct {
	Reply string `json:"reply"`
	HTML  string `json:"html"`
}

// parseReply decodes the model's JSON answer. Code fences around the
// object are tolerated.
func parseReply(raw string) (chat.Reply, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out modelReply
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return chat.Reply{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	out.Reply = strings.TrimSpace(out.Reply)
	if out.Reply == "" {
		return chat.Reply{}, fmt.Errorf("%w: empty reply", ErrInvalidJSON)
	}
	reply := chat.Reply{Text: out.Reply}
	if html := strings.TrimSpace(out.HTML); html != "" {
		reply.HTML = &html
	}
	return reply, nil
}
