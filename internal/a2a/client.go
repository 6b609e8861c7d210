package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSendTimeout bounds one remote invocation round trip. Expiry is a
// TIMEOUT failure on the caller's side; the protocol itself has no
// inherent timeout.
const DefaultSendTimeout = 30 * time.Second

// ClientConfig configures a remote agent client.
type ClientConfig struct {
	// Name labels the counterparty in logs and spans.
	Name string
	// BaseURL is the counterparty endpoint root.
	BaseURL string
	// RequiredExtensions must all appear on the counterparty's agent card
	// or Send fails before any business logic executes.
	RequiredExtensions []string
	// Timeout overrides DefaultSendTimeout when positive.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client invokes a counterparty agent endpoint. The call is synchronous
// from the caller's point of view: Send returns once the counterparty's
// task has left the working state. The counterparty may itself invoke
// further agents before replying, so calls form a tree and nested
// failures surface as the returned task's failed status.
type Client struct {
	name       string
	baseURL    string
	required   []string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer

	cardOnce sync.Once
	card     *AgentCard
	cardErr  error
}

// NewClient creates a client for one counterparty endpoint.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		required:   cfg.RequiredExtensions,
		timeout:    timeout,
		httpClient: httpClient,
		tracer:     otel.Tracer("agentpay/a2a"),
	}
}

// Card fetches and caches the counterparty's agent card.
func (c *Client) Card(ctx context.Context) (AgentCard, error) {
	c.cardOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+AgentCardPath, nil)
		if err != nil {
			c.cardErr = err
			return
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.cardErr = fmt.Errorf("fetch agent card from %s: %w", c.name, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.cardErr = fmt.Errorf("fetch agent card from %s: status %d", c.name, resp.StatusCode)
			return
		}
		var card AgentCard
		if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
			c.cardErr = fmt.Errorf("decode agent card from %s: %w", c.name, err)
			return
		}
		c.card = &card
	})
	if c.cardErr != nil {
		return AgentCard{}, c.cardErr
	}
	return *c.card, nil
}

// Send negotiates capabilities and delivers one message envelope,
// returning the counterparty's task projection once it leaves working.
func (c *Client) Send(ctx context.Context, msg Message) (Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	operation, _ := FindTextPart(msg.Parts)
	ctx, span := c.tracer.Start(ctx, "a2a.send",
		trace.WithAttributes(
			attribute.String("a2a.operation", operation),
			attribute.String("a2a.counterparty", c.name),
		))
	defer span.End()

	card, err := c.Card(ctx)
	if err != nil {
		return Task{}, c.mapSendError(err)
	}
	for _, uri := range c.required {
		if !card.Supports(uri) {
			return Task{}, apperrors.WithMetadata(apperrors.CodeUnsupportedExtension,
				fmt.Sprintf("agent %s does not support required extension %s", c.name, uri),
				map[string]string{"extension": uri})
		}
	}

	body, err := json.Marshal(SendRequest{Message: msg})
	if err != nil {
		return Task{}, fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return Task{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Task{}, c.mapSendError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Task{}, apperrors.New(apperrors.CodeNotFound, decodeErrorBody(resp, "referenced task not found"))
	default:
		return Task{}, fmt.Errorf("send to %s: status %d", c.name, resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("decode task from %s: %w", c.name, err)
	}
	span.SetAttributes(
		attribute.String("a2a.task_id", task.ID),
		attribute.String("a2a.task_state", string(task.Status.State)),
	)
	return task, nil
}

// mapSendError converts a deadline expiry into the domain timeout error.
func (c *Client) mapSendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeTimeout,
			fmt.Sprintf("no response from %s within deadline", c.name), err)
	}
	return err
}

func decodeErrorBody(resp *http.Response, fallback string) string {
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		if msg := payload["error"]; msg != "" {
			return msg
		}
	}
	return fallback
}
