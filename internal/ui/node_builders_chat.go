package ui

import (
	"fmt"

	"htmlchat/internal/chat"
)

const (
	AppTitle         = "HTML Chat Renderer"
	PanelTitle       = "Rendered HTML"
	InputPlaceholder = "Type your message..."
	UploadAccept     = "text/html,.html"

	// PreviewSandbox is applied to the preview iframe so uploaded or
	// generated markup runs in its own document.
	PreviewSandbox = "allow-scripts allow-same-origin allow-modals allow-forms allow-popups"

	// PreviewPath serves the open panel's fragment as its own document.
	PreviewPath = "/preview"

	// PreviewCSP is sent with the preview document. A CSP sandbox without
	// allow-same-origin gives the document an opaque origin whatever the
	// iframe allows, so it cannot script the app or reuse its cookie.
	PreviewCSP = "sandbox allow-scripts allow-forms allow-modals allow-popups"
)

// PreviewSrc is the iframe URL for a snapshot version. The version only
// busts caches; the route always serves the current panel.
func PreviewSrc(version uint64) string {
	return fmt.Sprintf("%s?v=%d", PreviewPath, version)
}

// BuildView maps a snapshot to its UI description. It is pure.
func BuildView(snap chat.Snapshot) View {
	msgs := make([]MessageNode, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		role := RoleBot
		if m.Sender == chat.SenderUser {
			role = RoleUser
		}
		msgs = append(msgs, MessageNode{
			ID:      m.ID,
			Role:    role,
			Text:    m.Text,
			HasHTML: m.HasHTML(),
		})
	}
	return View{
		Title:    AppTitle,
		Messages: msgs,
		Typing:   snap.IsProcessing,
		Input: InputNode{
			Placeholder: InputPlaceholder,
			Disabled:    snap.IsProcessing,
			Accept:      UploadAccept,
		},
		Panel: PanelNode{
			Title:   PanelTitle,
			Open:    snap.ShowSidePanel,
			Src:     PreviewSrc(snap.Version),
			Sandbox: PreviewSandbox,
		},
		Version: snap.Version,
	}
}
