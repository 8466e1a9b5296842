package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"htmlchat/internal/chat"
)

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 64 << 10

// HandleUpload accepts one HTML file in the multipart field "file".
func (s *Service) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUploadBytes + multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, chat.ErrUploadTooLarge)
			return
		}
		writeBadRequest(w, "expected a multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []chat.UploadFile
	if headers := r.MultipartForm.File["file"]; len(headers) > 0 {
		file, err := readUpload(headers[0], s.maxUploadBytes)
		if err != nil {
			s.logger.Warn("read upload failed", zap.String("session", sess.ID), zap.Error(err))
			writeError(w, err)
			return
		}
		files = append(files, file)
	}

	if err := sess.Store.HandleHTMLUpload(files...); err != nil {
		s.logger.Info("upload rejected", zap.String("session", sess.ID), zap.Error(err))
		writeError(w, err)
		return
	}

	snap := sess.Store.Snapshot()
	if len(files) > 0 {
		if id, ok := lastUserMessageID(snap); ok {
			s.archive(r.Context(), sess.ID, uploadPath(id, files[0].Name), files[0].Data)
		}
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// readUpload reads at most maxBytes+1 bytes so oversize files are still
// reported as too large by the chat layer.
func readUpload(fh *multipart.FileHeader, maxBytes int64) (chat.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return chat.UploadFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return chat.UploadFile{}, fmt.Errorf("read upload: %w", err)
	}
	return chat.UploadFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// lastUserMessageID finds the "Uploaded:" message; the acknowledgement may
// already follow it.
func lastUserMessageID(snap chat.Snapshot) (int, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Sender == chat.SenderUser {
			return snap.Messages[i].ID, true
		}
	}
	return 0, false
}

func uploadPath(messageID int, name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" {
		base = "upload.html"
	}
	return fmt.Sprintf("uploads/%d-%s", messageID, base)
}
