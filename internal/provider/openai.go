package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/glintlabs/glint/internal/stream"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIGateway streams chat completions from any OpenAI-compatible
// endpoint. It marshals go-openai request types but drives its own SSE
// reader so the orchestrator keeps full control over cancellation and
// stream termination.
type OpenAIGateway struct {
	baseURL    string
	credential string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenAIGateway(baseURL, credential string, logger *zap.Logger) *OpenAIGateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		// No overall timeout: streams stay open as long as deltas arrive.
		// Cancellation comes from the request context.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (g *OpenAIGateway) Open(ctx context.Context, payload Payload) (StreamHandle, error) {
	if g.credential == "" {
		return nil, ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:    payload.Model,
		Messages: buildMessages(payload),
		Stream:   true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.credential)
	httpReq.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		g.logger.Warn("provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.Bool("multimodal", payload.HasImages()))
		return nil, &StatusError{
			Status:      resp.StatusCode,
			BodySnippet: strings.TrimSpace(string(raw)),
		}
	}

	g.logger.Debug("stream opened",
		zap.String("model", payload.Model),
		zap.Int("screenshots", len(payload.Screenshots)),
		zap.Duration("connect", time.Since(started)))

	return &httpStream{
		body:    resp.Body,
		decoder: stream.NewDecoder(resp.Body),
	}, nil
}

// buildMessages assembles the wire messages: system prompt, prior history,
// then the question with any screenshots attached as base64 image parts.
func buildMessages(payload Payload) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(payload.History)+2)

	if payload.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: payload.SystemPrompt,
		})
	}

	for _, msg := range payload.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if !payload.HasImages() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: payload.Question,
		})
		return messages
	}

	parts := make([]openai.ChatMessagePart, 0, len(payload.Screenshots)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: payload.Question,
	})
	for _, shot := range payload.Screenshots {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot.ImageBytes),
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
	return messages
}

// httpStream adapts a live response body plus decoder to StreamHandle.
type httpStream struct {
	body    io.ReadCloser
	decoder *stream.Decoder
	closed  bool
}

func (s *httpStream) Read(ctx context.Context, onDelta func(delta string)) (string, error) {
	return s.decoder.Decode(ctx, onDelta)
}

func (s *httpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
