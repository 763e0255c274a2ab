package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/thebtf/orthomate/internal/config"
)

const geminiPrompt = "Transcribe this clinical dictation verbatim. Return only the transcript text."

// GeminiConfig configures the Gemini audio transcription client.
type GeminiConfig struct {
	HTTPOptions *genai.HTTPOptions
	APIKey      string
	Model       string
}

// Gemini transcribes audio with a multimodal Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. An API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.HTTPOptions != nil {
		cc.HTTPOptions = *cfg.HTTPOptions
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Transcribe sends the instruction and the inline audio in one user turn.
func (g *Gemini) Transcribe(ctx context.Context, audio Audio) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(geminiPrompt),
			genai.NewPartFromBytes(audio.Data, audio.mimeType()),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
