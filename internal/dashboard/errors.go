package dashboard

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected transitions.
var (
	ErrUnknownTemplate = errors.New("unknown template")
	ErrDictationActive = errors.New("dictation already in progress")
	ErrNotRecording    = errors.New("no dictation in progress")
	ErrNoAudio         = errors.New("no audio captured")
)

// TranscriptionError reports a failed speech-to-text call. The note is left
// untouched.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// StoreError reports a failed record store call. Op is "save" or "query".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ClipboardError reports a failed clipboard write.
type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy to clipboard failed: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error { return e.Err }

// ExportError reports a failed document render. Format is "word" or "pdf".
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%s export failed: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
