// ABOUTME: Gemini-backed implementation of the tutor.Gateway contract
// ABOUTME: Maps phase directives to system instructions and parses the JSON reply envelope

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/2389/feynomenon-gateway/internal/session"
	"github.com/2389/feynomenon-gateway/internal/tutor"
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// Client implements tutor.Gateway against the Gemini API.
type Client struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	logger          *slog.Logger
}

// NewClient creates a Gemini gateway. The API key comes from config or the
// GEMINI_API_KEY environment variable.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key not configured (set gemini.api_key or GEMINI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{
		client:          client,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		logger:          logger.With("component", "gemini"),
	}, nil
}

// Generate produces the next assistant reply and an optional transition
// signal for the given history and phase directive.
func (c *Client) Generate(ctx context.Context, req *tutor.GenerateRequest) (*tutor.GenerateResult, error) {
	contents := buildContents(req.History, req.MaxContextTurns)
	if len(contents) == 0 {
		return nil, tutor.NewGenerationError(false, errors.New("empty history"))
	}

	temp := c.temperature
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction(req.Directive, req.Topic), genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   c.maxOutputTokens,
		ResponseMIMEType:  "application/json",
	}

	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return nil, tutor.NewGenerationError(isRetryable(err), fmt.Errorf("gemini generate content: %w", err))
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return nil, tutor.NewGenerationError(true, errors.New("gemini returned empty text"))
	}

	result := parseResult(req.Directive, text)
	c.logger.Debug("generation complete",
		"directive", req.Directive.String(),
		"context_turns", len(contents),
		"signal", result.Signal.Kind != tutor.SignalNone)
	return result, nil
}

// buildContents maps the bounded history window onto genai contents.
// The controller already windows the history; this enforces the bound again
// so a misbehaving caller cannot blow the context. The first content must be
// user-role per the Gemini multi-turn convention.
func buildContents(history []session.Turn, maxTurns int) []*genai.Content {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	if len(history) > 0 && history[0].Role == session.RoleAssistant {
		history = history[1:]
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return contents
}

// parseResult interprets the model's JSON envelope into a tagged result.
// A malformed envelope degrades to the raw text with no signal rather than
// failing the turn: the reply is still useful even when the model ignores
// the output contract.
func parseResult(directive tutor.Directive, text string) *tutor.GenerateResult {
	body := stripFences(text)
	if !gjson.Valid(body) {
		return &tutor.GenerateResult{ReplyText: strings.TrimSpace(text)}
	}

	reply := strings.TrimSpace(gjson.Get(body, "reply").String())
	if reply == "" {
		return &tutor.GenerateResult{ReplyText: strings.TrimSpace(text)}
	}

	result := &tutor.GenerateResult{ReplyText: reply}
	switch directive {
	case tutor.DirectiveTopicGathering:
		if topic := strings.TrimSpace(gjson.Get(body, "topic").String()); topic != "" {
			result.Signal = tutor.Signal{Kind: tutor.SignalTopicIdentified, Topic: topic}
		}
	case tutor.DirectiveTutoring:
		if gjson.Get(body, "understood").Bool() {
			result.Signal = tutor.Signal{Kind: tutor.SignalUnderstandingConfirmed}
		}
	}
	return result
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even when asked for bare JSON.
func stripFences(text string) string {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

// isRetryable classifies gateway failures. Rate limits, server errors, and
// deadline hits are worth retrying; everything else is not.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
