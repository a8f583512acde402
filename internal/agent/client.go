package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Typed failures of the remote completion path. Callers route every one of
// them to a local fallback; none may surface to the end user.
var (
	ErrNoCredentials = errors.New("agent: missing completion credentials")
	ErrRunFailed     = errors.New("agent: assistant run did not complete")
	ErrRunTimeout    = errors.New("agent: assistant run polling timed out")
	ErrEmptyReply    = errors.New("agent: assistant returned no reply")
)

// assistantAPI is the slice of the OpenAI client the completion path uses.
// Tests substitute a fake.
type assistantAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string) (openai.MessagesList, error)
}

// Client talks to the remote assistant through the threads/runs protocol.
// One conversation thread is kept per process, created lazily. The client is
// explicitly best-effort; a caller with no local fallback is a bug.
type Client struct {
	api          assistantAPI
	assistantID  string
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	threadID string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func NewClient(apiKey, assistantID string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		assistantID:  assistantID,
		pollInterval: 800 * time.Millisecond,
		timeout:      25 * time.Second,
		logger:       logger,
	}
	if apiKey != "" {
		c.api = openai.NewClient(apiKey)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResetThread discards the process conversation thread; the next call
// creates a fresh one.
func (c *Client) ResetThread() {
	c.mu.Lock()
	c.threadID = ""
	c.mu.Unlock()
}

// Complete sends the prompt through the thread, starts a run, polls it to a
// terminal status and returns the sanitized latest reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.api == nil || c.assistantID == "" {
		return "", ErrNoCredentials
	}

	threadID, err := c.ensureThread(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to ensure thread: %w", err)
	}

	if _, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	if err := c.pollRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}
	return c.fetchLatestReply(ctx, threadID)
}

func (c *Client) ensureThread(ctx context.Context) (string, error) {
	c.mu.Lock()
	threadID := c.threadID
	c.mu.Unlock()
	if threadID != "" {
		return threadID, nil
	}

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.threadID = thread.ID
	c.mu.Unlock()
	return thread.ID, nil
}

// pollRun watches the run at a fixed interval until a terminal status or the
// configured timeout. On timeout the run is abandoned, not remotely
// cancelled.
func (c *Client) pollRun(ctx context.Context, threadID, runID string) error {
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("failed to poll run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			return fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrRunTimeout, ctx.Err())
		case <-deadline.C:
			c.logger.Warn("abandoning assistant run",
				zap.String("run_id", runID), zap.Duration("timeout", c.timeout))
			return ErrRunTimeout
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchLatestReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch reply: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				return Sanitize(content.Text.Value), nil
			}
		}
	}
	return "", ErrEmptyReply
}

// citationMarkers matches the 【...】 scaffolding the assistant emits around
// file citations.
var citationMarkers = regexp.MustCompile(`【[^】]*】`)

// internalPrefixes are reasoning markers that must never reach the user.
var internalPrefixes = []string{
	"análise:", "analise:", "raciocínio:", "raciocinio:", "pensando:", "assistant:",
}

// Sanitize strips internal scaffolding from a raw assistant reply.
func Sanitize(raw string) string {
	out := citationMarkers.ReplaceAllString(raw, "")
	trimmed := strings.TrimSpace(out)
	lower := strings.ToLower(trimmed)
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			trimmed = strings.TrimSpace(trimmed[len(prefix):])
			break
		}
	}
	return trimmed
}
