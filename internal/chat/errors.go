package chat

import "errors"

var (
	ErrUnsupportedEncoding = errors.New("unsupported file encoding")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrUploadTooLarge      = errors.New("upload too large")
	ErrBusy                = errors.New("a reply is already in progress")
	ErrRateLimited         = errors.New("too many requests")
	ErrClosed              = errors.New("session closed")
	ErrUnknownMessage      = errors.New("unknown message")
)
