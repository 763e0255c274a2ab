package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/orthomate/internal/config"
)

// WhisperConfig configures the OpenAI audio transcription client.
type WhisperConfig struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
	Model      string
}

// Whisper calls the OpenAI /v1/audio/transcriptions endpoint.
type Whisper struct {
	client   *http.Client
	apiKey   string
	endpoint string
	model    string
}

type whisperResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewWhisper creates a Whisper client. An API key is required.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = config.DefaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultWhisperModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Whisper{
		client:   client,
		apiKey:   cfg.APIKey,
		endpoint: base + "/v1/audio/transcriptions",
		model:    model,
	}, nil
}

// Transcribe uploads the clip as multipart form data and returns the text.
func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	body, contentType, err := w.encode(audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read whisper response: %w", err)
	}

	var out whisperResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("whisper: status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("whisper: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode whisper response: %w", decodeErr)
	}
	if out.Text == "" {
		return "", ErrEmptyTranscript
	}
	return out.Text, nil
}

func (w *Whisper) encode(audio Audio) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.filename()))
	h.Set("Content-Type", audio.mimeType())
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", w.model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
