// ABOUTME: Error types returned by engine actions
// ABOUTME: SendError and UploadError wrap the backend cause and match their sentinels

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when Send is given only whitespace.
	ErrEmptyInput = errors.New("input is empty")

	// ErrClosed is returned by actions on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrUnknownConversation is returned by UseConversation for ids not in the directory.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrSendFailed matches every *SendError.
	ErrSendFailed = errors.New("send failed")

	// ErrUploadFailed matches every *UploadError.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNoUploader is returned by Upload when the engine has no multimodal sender.
	ErrNoUploader = errors.New("uploads not configured")
)

// SendError reports a failed text send.
type SendError struct {
	ConversationID string
	Reason         string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %s", e.Reason)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}

// UploadError reports a failed multimodal upload.
type UploadError struct {
	ConversationID string
	FileName       string
	Reason         string
	Err            error
}

func (e *UploadError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("upload of %q failed: %s", e.FileName, e.Reason)
	}
	return fmt.Sprintf("upload failed: %s", e.Reason)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}
