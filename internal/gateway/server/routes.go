package server

import (
	"net/http"

	"go.uber.org/zap"

	"htmlchat/internal/gateway/handler"
	"htmlchat/internal/gateway/middleware"
	"htmlchat/internal/ui"
)

func NewMux(svc *handler.Service, logger *zap.Logger, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// Page and push channel
	mux.HandleFunc("GET /{$}", svc.HandlePage)
	mux.Handle("GET /static/", ui.Static())
	mux.HandleFunc("GET /ws", svc.HandleWS)
	mux.HandleFunc("GET "+ui.PreviewPath, svc.HandlePreview)

	// JSON API
	mux.HandleFunc("GET /api/state", svc.HandleState)
	mux.HandleFunc("POST /api/messages", svc.HandleSendMessage)
	mux.HandleFunc("POST /api/upload", svc.HandleUpload)
	mux.HandleFunc("POST /api/panel", svc.HandleShowPanel)
	mux.HandleFunc("DELETE /api/panel", svc.HandleClosePanel)
	mux.HandleFunc("GET /api/transcript", svc.HandleTranscript)
	mux.HandleFunc("GET /api/artifacts", svc.HandleListArtifacts)
	mux.HandleFunc("GET /api/artifacts/{path...}", svc.HandleGetArtifact)

	mux.HandleFunc("GET /healthz", svc.HandleHealth)

	// Middleware
	return middleware.RequestLogger(logger)(middleware.CORS(corsOrigins)(mux))
}
