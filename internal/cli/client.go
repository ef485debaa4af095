package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ExecutionSummary — элемент списка executions.
type ExecutionSummary struct {
	ID              string `json:"id"`
	TaskID          string `json:"task_id"`
	TeamID          string `json:"team_id"`
	State           string `json:"state"`
	LastActive      string `json:"last_active"`
	OpenBlockers    int    `json:"open_blockers"`
	EscalationLevel int    `json:"escalation_level"`
	CreatedAt       string `json:"created_at"`
	LastEventAt     string `json:"last_event_at"`
}

// LogEntryResponse — запись журнала execution.
type LogEntryResponse struct {
	At       string         `json:"at"`
	Kind     string         `json:"kind"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecutionResponse — execution с журналом.
type ExecutionResponse struct {
	ID              string             `json:"id"`
	TaskID          string             `json:"task_id"`
	TeamID          string             `json:"team_id"`
	State           string             `json:"state"`
	CreatedAt       string             `json:"created_at"`
	StartedAt       string             `json:"started_at,omitempty"`
	FinishedAt      string             `json:"finished_at,omitempty"`
	EscalationLevel int                `json:"escalation_level"`
	Result          map[string]any     `json:"result,omitempty"`
	Error           map[string]any     `json:"error,omitempty"`
	Log             []LogEntryResponse `json:"log"`
}

// StartExecutionResponse — результат запуска.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
	Warning     string `json:"warning,omitempty"`
}

// ProgressResponse — прогресс execution.
type ProgressResponse struct {
	ExecutionID     string `json:"execution_id"`
	State           string `json:"state"`
	Percentage      int    `json:"percentage"`
	IsTerminal      bool   `json:"is_terminal"`
	IsBlocked       bool   `json:"is_blocked"`
	EscalationLevel int    `json:"escalation_level"`
	OpenBlockers    int    `json:"open_blockers"`
	Delegations     struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
		Active  int `json:"active"`
		Done    int `json:"done"`
		Failed  int `json:"failed"`
	} `json:"delegations"`
}

// DelegationResponse — делегирование.
type DelegationResponse struct {
	ID          string   `json:"id"`
	ExecutionID string   `json:"execution_id"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Kind        string   `json:"kind"`
	DependsOn   []string `json:"depends_on,omitempty"`
	WorkerID    string   `json:"worker_id,omitempty"`
	Status      string   `json:"status"`
	UpdatedAt   string   `json:"updated_at"`
}

// BlockerResponse — блокер.
type BlockerResponse struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Resolution  *string        `json:"resolution,omitempty"`
	CreatedAt   string         `json:"created_at"`
	ResolvedAt  string         `json:"resolved_at,omitempty"`
}

// MessageResponse — сообщение шины.
type MessageResponse struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Body          string `json:"body"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// SendMessageResponse — отправленное сообщение и число получателей.
type SendMessageResponse struct {
	Message    MessageResponse `json:"message"`
	Recipients int             `json:"recipients"`
}

type stateResponse struct {
	State string `json:"state"`
}

type idResponse struct {
	ID string `json:"id"`
}

// --- Request types ---

// TaskRequest — задача для запуска execution.
type TaskRequest struct {
	ID                 string   `json:"id,omitempty"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// StartExecutionRequest — запуск execution.
type StartExecutionRequest struct {
	Task   TaskRequest `json:"task"`
	TeamID string      `json:"team_id,omitempty"`
}

// CreateBlockerRequest — регистрация блокера.
type CreateBlockerRequest struct {
	Description string         `json:"description"`
	Severity    string         `json:"severity,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ResolveBlockerRequest — снятие блокера.
type ResolveBlockerRequest struct {
	Resolution string `json:"resolution"`
	NextState  string `json:"next_state"`
}

// EscalationRequest — эскалация человеку.
type EscalationRequest struct {
	Reason             string   `json:"reason"`
	Details            string   `json:"details,omitempty"`
	AttemptedSolutions []string `json:"attempted_solutions,omitempty"`
}

// SendMessageRequest — отправка сообщения. Пустой RecipientID — broadcast.
type SendMessageRequest struct {
	SenderID      string `json:"sender_id"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Body          string `json:"body"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для AgentSquad API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Executions ---

// ListExecutions возвращает активные executions. Если state не пустой — фильтрует.
func (c *Client) ListExecutions(state string) ([]ExecutionSummary, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}

	var list []ExecutionSummary
	err := c.list("/api/v1/executions", params, &list)
	return list, err
}

// StartExecution запускает execution.
func (c *Client) StartExecution(req StartExecutionRequest) (*StartExecutionResponse, error) {
	var resp StartExecutionResponse
	err := c.post("/api/v1/executions", req, &resp)
	return &resp, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get(executionPath(id), &exec)
	return &exec, err
}

// GetProgress возвращает прогресс execution.
func (c *Client) GetProgress(id string) (*ProgressResponse, error) {
	var p ProgressResponse
	err := c.get(executionPath(id)+"/progress", &p)
	return &p, err
}

// ListDelegations возвращает делегирования execution.
func (c *Client) ListDelegations(id string) ([]DelegationResponse, error) {
	var ds []DelegationResponse
	err := c.list(executionPath(id)+"/delegations", nil, &ds)
	return ds, err
}

// CompleteExecution завершает execution успешно.
func (c *Client) CompleteExecution(id string, result map[string]any) (string, error) {
	var resp stateResponse
	err := c.post(executionPath(id)+"/complete", map[string]any{"result": result}, &resp)
	return resp.State, err
}

// FailExecution завершает execution с ошибкой.
func (c *Client) FailExecution(id string, errPayload map[string]any) (string, error) {
	var resp stateResponse
	err := c.post(executionPath(id)+"/fail", map[string]any{"error": errPayload}, &resp)
	return resp.State, err
}

// CancelExecution отменяет execution.
func (c *Client) CancelExecution(id, detail string) (string, error) {
	var resp stateResponse
	err := c.post(executionPath(id)+"/cancel", map[string]string{"detail": detail}, &resp)
	return resp.State, err
}

// --- Blockers ---

// ListBlockers возвращает блокеры execution.
func (c *Client) ListBlockers(id string) ([]BlockerResponse, error) {
	var bs []BlockerResponse
	err := c.list(executionPath(id)+"/blockers", nil, &bs)
	return bs, err
}

// CreateBlocker регистрирует блокер и возвращает его ID.
func (c *Client) CreateBlocker(id string, req CreateBlockerRequest) (string, error) {
	var resp idResponse
	err := c.post(executionPath(id)+"/blockers", req, &resp)
	return resp.ID, err
}

// ResolveBlocker снимает блокер и возвращает новое состояние execution.
func (c *Client) ResolveBlocker(id, blockerID string, req ResolveBlockerRequest) (string, error) {
	var resp stateResponse
	err := c.post(executionPath(id)+"/blockers/"+url.PathEscape(blockerID)+"/resolve", req, &resp)
	return resp.State, err
}

// Escalate эскалирует execution человеку и возвращает ID эскалации.
func (c *Client) Escalate(id string, req EscalationRequest) (string, error) {
	var resp idResponse
	err := c.post(executionPath(id)+"/escalations", req, &resp)
	return resp.ID, err
}

// --- Messages ---

// SendMessage отправляет сообщение через шину.
func (c *Client) SendMessage(req SendMessageRequest) (*SendMessageResponse, error) {
	var resp SendMessageResponse
	err := c.post("/api/v1/messages", req, &resp)
	return &resp, err
}

// Inbox возвращает сообщения получателя.
func (c *Client) Inbox(recipient, since string, limit int) ([]MessageResponse, error) {
	params := url.Values{}
	if since != "" {
		params.Set("since", since)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var msgs []MessageResponse
	err := c.list("/api/v1/messages/"+url.PathEscape(recipient), params, &msgs)
	return msgs, err
}

// Conversation возвращает переписку двух участников.
func (c *Client) Conversation(a, b string) ([]MessageResponse, error) {
	params := url.Values{}
	params.Set("a", a)
	params.Set("b", b)

	var msgs []MessageResponse
	err := c.list("/api/v1/conversations", params, &msgs)
	return msgs, err
}

// --- HTTP helpers ---

func executionPath(id string) string {
	return "/api/v1/executions/" + url.PathEscape(id)
}

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
