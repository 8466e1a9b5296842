package chat

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
)

const DefaultMaxUploadBytes = 1 << 20

// UploadFile is one file received from the upload control.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// DecodeHTMLUpload validates an uploaded file and returns its text.
// The bytes are returned unchanged; only validation happens here.
func DecodeHTMLUpload(f UploadFile, maxBytes int64) (string, error) {
	name := strings.TrimSpace(f.Name)
	if !strings.EqualFold(path.Ext(name), ".html") {
		return "", fmt.Errorf("%w: %q is not an .html file", ErrUnsupportedFileType, name)
	}
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFileType, ct)
		}
		switch mediaType {
		case "text/html", "application/octet-stream":
		default:
			return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFileType, mediaType)
		}
	}
	if maxBytes > 0 && int64(len(f.Data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, len(f.Data), maxBytes)
	}
	if kind, _ := filetype.Match(f.Data); kind != filetype.Unknown {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedFileType, kind.MIME.Value)
	}
	if !utf8.Valid(f.Data) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrUnsupportedEncoding, name)
	}
	return string(f.Data), nil
}
