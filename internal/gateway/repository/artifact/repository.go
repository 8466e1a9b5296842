package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store archives session exports (uploaded files, transcripts). Archives
// are write-mostly; nothing restores a chat session from them.
type Store interface {
	Put(ctx context.Context, sessionID, path string, content []byte) error
	Get(ctx context.Context, sessionID, path string) ([]byte, error)
	List(ctx context.Context, sessionID string) ([]string, error)
}

var ErrNotFound = errors.New("artifact not found")

func normalizeKey(sessionID, path string) (string, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if sessionID == "" {
		return "", "", fmt.Errorf("session_id is required")
	}
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	return sessionID, path, nil
}

func objectKey(sessionID, path string) string {
	return sessionID + "/" + path
}
