// Package transcription turns buffered dictation audio into note text.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"mime"

	"github.com/thebtf/orthomate/internal/config"
)

// Default clip metadata for browser MediaRecorder output.
const (
	DefaultMimeType = "audio/webm"
	DefaultFilename = "audio.webm"
)

// ErrEmptyTranscript is returned when a provider answers without any text.
var ErrEmptyTranscript = errors.New("empty transcript")

// Audio is one complete dictation clip.
type Audio struct {
	Data     []byte
	MimeType string
	Filename string
}

func (a Audio) mimeType() string {
	if a.MimeType == "" {
		return DefaultMimeType
	}
	return a.MimeType
}

// audioExtensions maps recorder MIME types to the file extensions providers
// use to detect the container format.
var audioExtensions = map[string]string{
	"audio/webm":  "webm",
	"video/webm":  "webm",
	"audio/mp4":   "mp4",
	"video/mp4":   "mp4",
	"audio/x-m4a": "m4a",
	"audio/m4a":   "m4a",
	"audio/aac":   "m4a",
	"audio/ogg":   "ogg",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/wave":  "wav",
	"audio/x-wav": "wav",
	"audio/flac":  "flac",
}

// filename returns the explicit name, or "audio.{ext}" with the extension
// taken from the MIME type, ignoring parameters such as codecs.
func (a Audio) filename() string {
	if a.Filename != "" {
		return a.Filename
	}
	mediaType, _, err := mime.ParseMediaType(a.mimeType())
	if err != nil {
		return DefaultFilename
	}
	if ext, ok := audioExtensions[mediaType]; ok {
		return "audio." + ext
	}
	return DefaultFilename
}

// Transcriber converts an audio clip to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// New builds the transcriber selected by cfg.Provider.
func New(ctx context.Context, cfg config.TranscriptionConfig) (Transcriber, error) {
	switch cfg.Provider {
	case config.ProviderWhisper, "":
		w, err := NewWhisper(WhisperConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.WhisperModel,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.ProviderGemini:
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}
