package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"htmlchat/internal/chat"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var templates = template.Must(template.New("ui").ParseFS(templateFS, "templates/*.tmpl"))

// Render produces the app body for a view. Message text is escaped and the
// panel fragment never appears in it: the iframe loads PreviewPath, which is
// served under PreviewCSP.
func Render(v View) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "app", v); err != nil {
		return "", fmt.Errorf("render app: %w", err)
	}
	return buf.String(), nil
}

// RenderSnapshot is Render(BuildView(snap)).
func RenderSnapshot(snap chat.Snapshot) (string, error) {
	return Render(BuildView(snap))
}

// WritePage writes the full document with the initial render inlined.
func WritePage(w io.Writer, snap chat.Snapshot) error {
	if err := templates.ExecuteTemplate(w, "page", BuildView(snap)); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// Static serves the page script and stylesheet under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
