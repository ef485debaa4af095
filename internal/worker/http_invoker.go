package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPInvoker — вызов исполнителя по HTTP.
//
// POST на Worker.Endpoint с JSON-телом:
//
//	{"worker_id": "...", "role": "...", "specializations": [...], "assignment": {...}}
//
// Output:
//   - status_code (int): HTTP-код ответа
//   - headers (map[string]string): заголовки ответа
//   - body (any): тело ответа (JSON или строка)
type HTTPInvoker struct {
	// Client — HTTP-клиент (default: &http.Client{}).
	Client *http.Client

	// Timeout — таймаут одного вызова (default: 30s).
	Timeout time.Duration

	// Headers — дополнительные заголовки запроса.
	Headers map[string]string
}

type invocationRequest struct {
	WorkerID        string            `json:"worker_id"`
	Role            domain.Role       `json:"role"`
	Specializations []string          `json:"specializations,omitempty"`
	Assignment      domain.Assignment `json:"assignment"`
}

// Process отправляет назначение исполнителю.
func (h *HTTPInvoker) Process(ctx context.Context, w domain.Worker, a domain.Assignment) (*Result, error) {
	if w.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, w.ID)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(invocationRequest{
		WorkerID:        w.ID,
		Role:            w.Role,
		Specializations: w.Specializations,
		Assignment:      a,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range h.Headers {
		req.Header.Set(key, val)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	output := buildOutput(resp, respBody)

	// HTTP >= 400 — логическая ошибка (output сохраняется для retry по status_code)
	if resp.StatusCode >= 400 {
		return &Result{
			Output: output,
			Error:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}, nil
	}

	return &Result{Output: output}, nil
}

// buildOutput формирует output из HTTP-ответа.
func buildOutput(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
