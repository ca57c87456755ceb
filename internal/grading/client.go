// Package grading talks to the external AI grading service.
package grading

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"inpeak-backend/config"
	"inpeak-backend/internal/apperr"
)

// ChatRequest is the chat-completions request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Modalities  []string      `json:"modalities,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
}

type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	http        *http.Client
	url         string
	apiKey      string
	model       string
	audioFormat string
	temperature float64
	maxTokens   int
	log         *zap.Logger
}

func NewClient(cfg *config.Config, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.GradingTimeout}
	}
	return &Client{
		http:        httpClient,
		url:         cfg.GradingAPIURL,
		apiKey:      cfg.GradingAPIKey,
		model:       cfg.GradingModel,
		audioFormat: cfg.GradingAudioFormat,
		temperature: cfg.GradingTemperature,
		maxTokens:   cfg.GradingMaxTokens,
		log:         log.Named("grading"),
	}
}

// Model is the model identifier sent with every request.
func (c *Client) Model() string { return c.model }

// NewRequest builds the typed request for one answer.
func (c *Client) NewRequest(audio []byte, question string) ChatRequest {
	return ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: []ContentPart{{Type: "text", Text: SystemPromptV1}}},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: userPrompt(question)},
				{Type: "input_audio", InputAudio: &InputAudio{
					Data:   base64.StdEncoding.EncodeToString(audio),
					Format: c.audioFormat,
				}},
			}},
		},
		Modalities:  []string{"text"},
		Temperature: c.temperature,
		TopP:        1,
		MaxTokens:   c.maxTokens,
	}
}

// Grade sends the audio and question to the grading service and parses the
// reply. There is no retry here.
func (c *Client) Grade(ctx context.Context, audio []byte, question string) (*Result, error) {
	content, err := c.complete(ctx, c.NewRequest(audio, question))
	if err != nil {
		return nil, err
	}
	return ParseResult(content)
}

func (c *Client) complete(ctx context.Context, body ChatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Grading(err, "encode grading request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Grading(err, "build grading request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Grading(err, "call grading service")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.Grading(err, "read grading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("grading service returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(respBody, 512)))
		return "", apperr.Grading(fmt.Errorf("status %d", resp.StatusCode), "grading service rejected request")
	}

	var out ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", apperr.Grading(err, "decode grading response")
	}
	if len(out.Choices) == 0 {
		return "", apperr.Grading(ErrMalformedResponse, "grading response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
