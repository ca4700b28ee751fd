package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a construction site supervisor reviewing a daily report with photographs. Respond with strict JSON only."

// VisionCaller is the outbound completion boundary: a rendered prompt plus
// inlined images, a raw text response back.
type VisionCaller interface {
	GenerateJSON(ctx context.Context, prompt string, images []ImageInput) (string, error)
}

// Engine turns a submission into a StructuredAnalysis. With no caller
// configured it synthesizes the analysis offline from the form text alone.
type Engine struct {
	caller  VisionCaller
	timeout time.Duration
}

func NewEngine(caller VisionCaller) *Engine {
	return &Engine{caller: caller, timeout: 60 * time.Second}
}

// NewEngineFromConfig builds an engine backed by the Anthropic API when an
// api key is configured, and the offline generator otherwise.
func NewEngineFromConfig(apiKey, model string) *Engine {
	caller, err := NewAnthropicCaller(apiKey, model)
	if err != nil {
		log.Printf("analysis: no vision credentials configured, using offline generator: %v", err)
		return NewEngine(nil)
	}
	return NewEngine(caller)
}

func (e *Engine) Analyze(ctx context.Context, req Request) (StructuredAnalysis, error) {
	if e.caller == nil {
		return MockAnalysis(req), nil
	}

	prompt := RenderPrompt(ResolveTemplate(req.PromptTemplate, ""), req)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.caller.GenerateJSON(callCtx, prompt, req.Photos)
	if err != nil && isImageError(err) && len(req.Photos) > 0 {
		// A malformed or oversized photo should not sink the whole
		// analysis; retry once with the text alone.
		log.Printf("analysis: vision call rejected images, retrying without them: %v", err)
		raw, err = e.caller.GenerateJSON(callCtx, prompt, nil)
	}
	if err != nil {
		return StructuredAnalysis{}, fmt.Errorf("vision call: %w", err)
	}

	clean := stripCodeFences(raw)
	var out StructuredAnalysis
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return StructuredAnalysis{}, fmt.Errorf("vision response is not valid JSON: %w", err)
	}
	normalizePhotoDocs(&out, len(req.Photos))
	return out, nil
}

// normalizePhotoDocs forces the photo documentation to align with the actual
// image count and order, padding or truncating whatever the model returned.
func normalizePhotoDocs(a *StructuredAnalysis, photoCount int) {
	a.PhotoDocumentation.TotalImages = photoCount
	for len(a.PhotoDocumentation.Descriptions) < photoCount {
		a.PhotoDocumentation.Descriptions = append(a.PhotoDocumentation.Descriptions,
			genericCaption(len(a.PhotoDocumentation.Descriptions)))
	}
	if len(a.PhotoDocumentation.Descriptions) > photoCount {
		a.PhotoDocumentation.Descriptions = a.PhotoDocumentation.Descriptions[:photoCount]
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// isImageError classifies failures caused by the attached image content:
// content-rejection status codes on a typed API error, or anything the
// transport names an image problem. Other errors propagate and fail the
// report.
func isImageError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
			http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "image")
}

// --- Anthropic-backed caller ---

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    anthropic.Model
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCaller(apiKey, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	m := anthropic.Model(strings.TrimSpace(model))
	if m == "" {
		m = anthropic.ModelClaudeSonnet4_20250514
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: m}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string, images []ImageInput) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
