package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/repository/artifact"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{chat.ErrUnsupportedEncoding, http.StatusUnsupportedMediaType, "unsupported_encoding", "Unsupported file encoding: only UTF-8 HTML files can be uploaded."},
	{chat.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, "unsupported_file_type", "Unsupported file type: please upload an .html file."},
	{chat.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "too_large", "The file is too large to upload."},
	{chat.ErrBusy, http.StatusConflict, "busy", "Please wait for the current reply to finish."},
	{chat.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many requests. Slow down a little."},
	{chat.ErrClosed, http.StatusGone, "closed", "This chat session has ended. Reload the page to start a new one."},
	{chat.ErrUnknownMessage, http.StatusNotFound, "not_found", "That message has no HTML to show."},
	{artifact.ErrNotFound, http.StatusNotFound, "not_found", "Artifact not found."},
	{errMissingPanelContent, http.StatusBadRequest, "invalid_argument", "html or messageId is required"},
}

// classify maps an error to its HTTP status and user-visible code.
func classify(err error) (int, apiError) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, apiError{Code: e.code, Message: e.message}
		}
	}
	return http.StatusInternalServerError, apiError{Code: "internal", Message: "Something went wrong."}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, apiError{Code: "invalid_argument", Message: message})
}

// writeJSON leaves HTML fragments unescaped so they stay readable.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
