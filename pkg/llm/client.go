// Package llm talks to a LlamaStack server: RAG retrieval of regulatory
// context and chat completions that explain a scorecard.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mchmarny/permitctl/pkg/net"
	"github.com/mchmarny/permitctl/pkg/score"
)

const (
	DefaultBaseURL = "http://localhost:8321"
	DefaultModel   = "llama-3.2-8b-instruct"
	DefaultTimeout = 120 * time.Second

	healthPath     = "/v1/health"
	ragPath        = "/v1/tool-runtime/rag-tool/query"
	completionPath = "/v1/inference/chat-completion"

	providerDataHeader = "X-LlamaStack-Provider-Data"
)

// ErrNotConfigured is returned when an operation needs a setting the client lacks.
var ErrNotConfigured = errors.New("llm client not configured")

// Config holds LlamaStack connection settings.
type Config struct {
	BaseURL      string            `yaml:"base_url" json:"base_url"`
	Model        string            `yaml:"model" json:"model"`
	APIKey       string            `yaml:"-" json:"-"`
	VectorDBID   string            `yaml:"vector_db_id,omitempty" json:"vector_db_id,omitempty"`
	Timeout      time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ProviderData map[string]string `yaml:"-" json:"-"`
}

// Client is a LlamaStack HTTP client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client; the API key, when set, is sent as a bearer token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var hc *http.Client
	if cfg.APIKey != "" {
		hc = net.GetOAuthClient(ctx, cfg.APIKey, cfg.Timeout)
	} else {
		c, err := net.GetHTTPClient()
		if err != nil {
			return nil, err
		}
		c.Timeout = cfg.Timeout
		hc = c
	}

	if len(cfg.ProviderData) > 0 {
		b, err := json.Marshal(cfg.ProviderData)
		if err != nil {
			return nil, fmt.Errorf("encoding provider data: %w", err)
		}
		hc.Transport = &headerTransport{
			base:   transportOrDefault(hc.Transport),
			header: providerDataHeader,
			value:  string(b),
		}
	}

	return &Client{cfg: cfg, http: hc}, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

type headerTransport struct {
	base   http.RoundTripper
	header string
	value  string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(t.header, t.value)
	return t.base.RoundTrip(r)
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// Health checks the server is reachable and returns its reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := net.GetJSON(ctx, c.http, c.cfg.BaseURL+healthPath, &resp); err != nil {
		return "", fmt.Errorf("checking LlamaStack health: %w", err)
	}
	return resp.Status, nil
}

type ragRequest struct {
	Content     string   `json:"content"`
	VectorDBIDs []string `json:"vector_db_ids"`
}

type ragResponse struct {
	Content json.RawMessage `json:"content"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Retrieve queries the RAG tool for regulation chunks relevant to query.
func (c *Client) Retrieve(ctx context.Context, query string) ([]string, error) {
	if c.cfg.VectorDBID == "" {
		return nil, fmt.Errorf("%w: vector DB ID is required for retrieval", ErrNotConfigured)
	}

	var resp ragResponse
	req := ragRequest{Content: query, VectorDBIDs: []string{c.cfg.VectorDBID}}
	if err := net.PostJSON(ctx, c.http, c.cfg.BaseURL+ragPath, req, &resp); err != nil {
		return nil, fmt.Errorf("querying rag tool: %w", err)
	}
	return extractText(resp.Content)
}

// extractText accepts either a plain string or a list of content items.
func extractText(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return []string{}, nil
		}
		return []string{s}, nil
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding rag content: %w", err)
	}
	texts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Type != "" && it.Type != "text" {
			continue
		}
		if t := strings.TrimSpace(it.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	ModelID  string    `json:"model_id"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	CompletionMessage *Message `json:"completion_message"`
	Choices           []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends messages to the chat completion endpoint and returns the reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	var resp completionResponse
	req := completionRequest{ModelID: c.cfg.Model, Messages: messages}
	if err := net.PostJSON(ctx, c.http, c.cfg.BaseURL+completionPath, req, &resp); err != nil {
		return "", fmt.Errorf("requesting chat completion: %w", err)
	}

	switch {
	case resp.CompletionMessage != nil && resp.CompletionMessage.Content != "":
		return resp.CompletionMessage.Content, nil
	case len(resp.Choices) > 0:
		return resp.Choices[0].Message.Content, nil
	default:
		return "", errors.New("chat completion returned no content")
	}
}

// Explain drafts a reviewer-facing summary of a scored application.
func (c *Client) Explain(ctx context.Context, app score.Application, card *score.Scorecard, regulations []string) (string, error) {
	prompt, err := ExplainPrompt(app, card, regulations)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	})
}

// Answer is a reply to a question and the regulation text it was based on.
type Answer struct {
	// Prompt is the user message sent to the model, including any regulations.
	Prompt  string   `json:"prompt"`
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

// Ask answers prompt following history. With a vector DB configured, the
// regulations retrieved for prompt are added to the user message; a failed
// retrieval is logged and the question is asked without them.
func (c *Client) Ask(ctx context.Context, history []Message, prompt string) (*Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", score.ErrInvalidInput)
	}

	regulations := []string{}
	if c.cfg.VectorDBID != "" {
		got, err := c.Retrieve(ctx, prompt)
		if err != nil {
			slog.Warn("regulation retrieval failed, answering without context", "error", err)
		} else {
			regulations = got
		}
	}

	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	for _, m := range history {
		if m.Role != RoleSystem {
			msgs = append(msgs, m)
		}
	}
	user := AskPrompt(prompt, regulations)
	msgs = append(msgs, Message{Role: RoleUser, Content: user})

	answer, err := c.Complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return &Answer{Prompt: user, Answer: answer, Context: regulations}, nil
}
