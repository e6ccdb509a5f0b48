// Package ai talks to any OpenAI-compatible chat completions endpoint.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config selects the endpoint per call, so a request may override the server defaults.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm response status %d: %s", e.StatusCode, e.Body)
}

var ErrEmptyResponse = errors.New("llm returned no choices")

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

func (c *Client) do(ctx context.Context, cfg Config, messages []Message, stream bool) (*http.Response, error) {
	body, err := json.Marshal(completionRequest{Model: cfg.Model, Messages: messages, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

func (c *Client) Complete(ctx context.Context, cfg Config, messages []Message) (string, error) {
	resp, err := c.do(ctx, cfg, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream calls onChunk for every content delta and returns the full reply.
// An error from onChunk aborts the stream.
func (c *Client) Stream(ctx context.Context, cfg Config, messages []Message, onChunk func(string) error) (string, error) {
	resp, err := c.do(ctx, cfg, messages, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta Message `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan llm stream failed: %w", err)
	}
	return full.String(), nil
}
