// Package peer delegates arithmetic-puzzle questions to a remote
// multi-agent solver and returns its final answer and transcript.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"palette/internal/awsclient"
	"palette/internal/config"
)

// ErrPeerFunction is returned when the peer ran but reported a failure.
var ErrPeerFunction = errors.New("peer function error")

// Request is the payload sent to the solver.
type Request struct {
	Question       string `json:"question"`
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Text2TextModel string `json:"text2text_model"`
}

// Response is the solver's reply. ChatMessages is the solver's own
// transcript and is kept opaque.
type Response struct {
	LastMessage  string `json:"last_message"`
	ChatMessages []any  `json:"chat_messages"`
}

// Invoker calls the solver synchronously.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

func decodeResponse(body []byte) (*Response, error) {
	var raw struct {
		LastMessage  *string `json:"last_message"`
		ChatMessages []any   `json:"chat_messages"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode peer response: %w", err)
	}
	if raw.LastMessage == nil {
		return nil, errors.New("peer response has no last_message")
	}
	return &Response{LastMessage: *raw.LastMessage, ChatMessages: raw.ChatMessages}, nil
}

// LambdaAPI is the subset of *lambda.Client used by LambdaInvoker.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker invokes a named function synchronously with the
// RequestResponse invocation type.
type LambdaInvoker struct {
	api      LambdaAPI
	function string
	logger   *slog.Logger
}

func NewLambdaInvoker(api LambdaAPI, function string, logger *slog.Logger) *LambdaInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaInvoker{api: api, function: function, logger: logger}
}

func (l *LambdaInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal peer request: %w", err)
	}

	start := time.Now()
	out, err := l.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.function),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", l.function, err)
	}
	l.logger.Debug("peer invoked", "function", l.function, "status", out.StatusCode, "duration", time.Since(start))

	if out.FunctionError != nil {
		return nil, fmt.Errorf("%w (%s): %s", ErrPeerFunction, aws.ToString(out.FunctionError), truncate(string(out.Payload), 300))
	}
	return decodeResponse(out.Payload)
}

// HTTPInvoker posts the request as JSON to a plain HTTP endpoint.
type HTTPInvoker struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPInvoker(endpoint string, client *http.Client, logger *slog.Logger) *HTTPInvoker {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPInvoker{url: endpoint, client: client, logger: logger}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal peer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("peer request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read peer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrPeerFunction, resp.StatusCode, truncate(string(body), 300))
	}
	return decodeResponse(body)
}

// New builds the invoker selected by cfg.Transport. The lambda transport
// resolves credentials through the AWS default chain.
func New(ctx context.Context, cfg config.PeerConfig, logger *slog.Logger) (Invoker, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	switch cfg.Transport {
	case "", "lambda":
		if cfg.FunctionName == "" {
			return nil, fmt.Errorf("peer.functionName: %w", config.ErrMissing)
		}
		awsCfg, err := awsclient.Load(ctx, cfg.Region, awsclient.WithTimeout(timeout))
		if err != nil {
			return nil, err
		}
		return NewLambdaInvoker(lambda.NewFromConfig(awsCfg), cfg.FunctionName, logger), nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("peer.url: %w", config.ErrMissing)
		}
		return NewHTTPInvoker(cfg.URL, &http.Client{Timeout: timeout}, logger), nil
	default:
		return nil, fmt.Errorf("unknown peer transport %q", cfg.Transport)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
