// Package cdsclient calls the remote CDS evaluation backend.
package cdsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/epicare/epicare/internal/domain/triage"
)

const (
	DefaultTimeout = 12 * time.Second
	actionEvaluate = "cdsEvaluate"
	maxBody        = 4 << 20
)

// ErrNotConfigured is returned when no backend URL is set.
var ErrNotConfigured = errors.New("cds backend not configured")

type request struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

// envelope is the wrapped response form. A bare AnalysisResult has no status.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New returns a client for baseURL. A non-positive timeout means
// DefaultTimeout.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSpace(baseURL),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Evaluate posts the follow-up payload and decodes the analysis. Transport
// failures and non-2xx statuses are errors; a backend that answers with an
// error envelope yields a result with Success=false.
func (c *Client) Evaluate(ctx context.Context, req triage.EvaluationRequest) (*triage.AnalysisResult, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(request{Action: actionEvaluate, Data: req})
	if err != nil {
		return nil, fmt.Errorf("marshal cds request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build cds request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("cds request timed out after %s: %w", c.timeout, err)
		}
		return nil, fmt.Errorf("cds request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read cds response: %w", err)
	}

	c.logger.Debug().
		Str("patient", req.PatientID).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("cds evaluate")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("cds backend returned status %d", resp.StatusCode)
	}
	return DecodeResult(raw)
}

// DecodeResult accepts either a bare AnalysisResult or a
// {"status","data"} envelope around one.
func DecodeResult(raw []byte) (*triage.AnalysisResult, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode cds response: %w", err)
	}

	if env.Status == "" {
		return decodeAnalysis(raw, false)
	}

	if !strings.EqualFold(env.Status, "success") {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "CDS evaluation failed (" + env.Status + ")"
		}
		return &triage.AnalysisResult{Success: false, Error: msg}, nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &triage.AnalysisResult{Success: false, Error: "CDS response carried no data"}, nil
	}
	return decodeAnalysis(env.Data, true)
}

// decodeAnalysis decodes one AnalysisResult. Inside a success envelope a
// missing "success" field means success.
func decodeAnalysis(raw []byte, enveloped bool) (*triage.AnalysisResult, error) {
	var probe struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode cds analysis: %w", err)
	}
	var result triage.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cds analysis: %w", err)
	}
	if probe.Success == nil && enveloped {
		result.Success = true
	}
	return &result, nil
}
