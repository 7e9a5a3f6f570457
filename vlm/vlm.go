// Package vlm is the OCR client for a pool of OpenAI-compatible
// vision-language model endpoints.
//
// Each pool entry carries its own base URL and model name. Requests
// round-robin across entries with a shared atomic counter.
package vlm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parsegate/parsegate/fault"
	"github.com/parsegate/parsegate/filetype"
)

// DefaultPrompt is used when the caller passes no prompt.
const DefaultPrompt = "Extract all text from this image accurately. Return only the extracted text without any additional explanation."

// DefaultEmbeddedImagePrompt is used for images lifted out of a document when
// no alt text is available.
const DefaultEmbeddedImagePrompt = "This is an embedded image from a document. Extract and describe all text, diagrams, charts, or visual content. Format the output as markdown."

// Server is one pool entry.
type Server struct {
	BaseURL string
	Model   string
}

// Config configures a Pool.
type Config struct {
	Servers             []Server
	Timeout             time.Duration // per request, default 2 minutes
	MaxTokens           int           // default 4096
	Temperature         float32       // default 0.01
	DefaultPrompt       string
	EmbeddedImagePrompt string
	Logger              *slog.Logger
}

type endpoint struct {
	client *openai.Client
	model  string
}

// Pool is a round-robin OCR client. Immutable after New.
type Pool struct {
	endpoints      []endpoint
	counter        atomic.Uint64
	timeout        time.Duration
	maxTokens      int
	temperature    float32
	defaultPrompt  string
	embeddedPrompt string
	logger         *slog.Logger
}

// New creates a Pool. At least one server with a base URL is required.
func New(cfg Config) (*Pool, error) {
	var endpoints []endpoint
	for _, srv := range cfg.Servers {
		if strings.TrimSpace(srv.BaseURL) == "" {
			continue
		}
		clientCfg := openai.DefaultConfig("")
		clientCfg.BaseURL = strings.TrimRight(srv.BaseURL, "/") + "/v1"
		clientCfg.HTTPClient = &http.Client{}
		endpoints = append(endpoints, endpoint{
			client: openai.NewClientWithConfig(clientCfg),
			model:  srv.Model,
		})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("vlm: no servers configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.01
	}
	if cfg.DefaultPrompt == "" {
		cfg.DefaultPrompt = DefaultPrompt
	}
	if cfg.EmbeddedImagePrompt == "" {
		cfg.EmbeddedImagePrompt = DefaultEmbeddedImagePrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		endpoints:      endpoints,
		timeout:        cfg.Timeout,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		defaultPrompt:  cfg.DefaultPrompt,
		embeddedPrompt: cfg.EmbeddedImagePrompt,
		logger:         cfg.Logger,
	}, nil
}

// Size returns the number of configured endpoints.
func (p *Pool) Size() int { return len(p.endpoints) }

// EmbeddedImagePrompt returns the prompt for embedded images without alt text.
func (p *Pool) EmbeddedImagePrompt() string { return p.embeddedPrompt }

func (p *Pool) next() endpoint {
	idx := p.counter.Add(1) - 1
	return p.endpoints[idx%uint64(len(p.endpoints))]
}

// OCR sends one image (as a data URI) and a prompt to the next endpoint and
// returns the model's text. An empty prompt selects the default OCR prompt.
// Malformed data URIs fail with fault.ErrBadRequest before any network call;
// back-end failures surface as fault.ErrVLM. An empty completion is returned
// as "" rather than an error.
func (p *Pool) OCR(ctx context.Context, dataURI, prompt string) (string, error) {
	if !filetype.ValidateDataURI(dataURI) {
		return "", fmt.Errorf("%w: not a valid base64 data URI", fault.ErrBadRequest)
	}
	if prompt == "" {
		prompt = p.defaultPrompt
	}

	ep := p.next()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: ep.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
				},
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
			},
		}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := ep.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrVLM, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", fault.ErrVLM)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		p.logger.Warn("vlm returned empty content", "model", ep.model)
	}
	return content, nil
}
