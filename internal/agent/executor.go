package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"palette/internal/domain"
	"palette/internal/metrics"
	"palette/internal/tool"
)

const (
	defaultMaxSteps     = 6
	defaultLLMMaxTokens = 4096
	defaultRateBurst    = 5
	defaultRatePerMin   = 30.0
)

// StoppedOutput is the answer when the step budget runs out before the model
// produces a final reply.
const StoppedOutput = "Agent stopped due to iteration limit or time limit."

// Executor runs the tool-calling loop: call LLM, execute requested tools,
// feed results back, repeat until the model answers or the budget is spent.
type Executor struct {
	provider    domain.Provider
	rateLimiter *RateLimiter
	maxTokens   int
	metrics     *metrics.Registry
	logger      *slog.Logger
}

// ExecutorConfig holds the dependencies of an Executor.
type ExecutorConfig struct {
	Provider    domain.Provider
	RateLimiter *RateLimiter // shared across runs; a private default is used when nil
	MaxTokens   int
	Metrics     *metrics.Registry // metrics.Default when nil
	Logger      *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = NewRateLimiter(defaultRateBurst, defaultRatePerMin)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultLLMMaxTokens
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		provider:    cfg.Provider,
		rateLimiter: cfg.RateLimiter,
		maxTokens:   cfg.MaxTokens,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// ExecuteRequest describes one agent run.
type ExecuteRequest struct {
	Tools        *tool.Registry
	Input        string
	History      []domain.Message // prior turns, oldest first
	MaxSteps     int
	SystemPrompt string
	Temperature  float64
	Model        string
}

// ExecuteResult is the final answer plus every intermediate step in
// invocation order.
type ExecuteResult struct {
	Output string
	Steps  []domain.Step
}

// Execute runs the loop. Tool failures become textual results and never end
// the run; provider failures do.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if e.provider == nil {
		return nil, errors.New("agent: no provider configured")
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	messages := BuildMessages(req.SystemPrompt, req.History, req.Input)

	var toolDefs []domain.ToolDefinition
	var toolNames []string
	if req.Tools != nil {
		toolDefs = req.Tools.GetDefinitions()
		toolNames = req.Tools.Names()
	}

	result := &ExecuteResult{}
	for iteration := 0; iteration < maxSteps; iteration++ {
		e.logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(messages))

		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		startTime := time.Now()
		resp, err := e.provider.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       req.Model,
			MaxTokens:   e.maxTokens,
			Temperature: req.Temperature,
		})
		e.metrics.RecordLLMRequest(err)
		if err != nil {
			return nil, fmt.Errorf("LLM error: %w", err)
		}
		resp.LatencyMs = time.Since(startTime).Milliseconds()

		// Some smaller models embed tool calls as JSON in the content field.
		if !resp.HasToolCalls() && resp.Content != "" && len(toolNames) > 0 {
			if extracted := parseContentToolCalls(resp.Content, toolNames); len(extracted) > 0 {
				resp.ToolCalls = extracted
				resp.Content = ""
				e.logger.Info("extracted tool calls from content text", "count", len(extracted))
			}
		}

		if !resp.HasToolCalls() {
			result.Output = finalText(resp.Content)
			return result, nil
		}

		for i := range resp.ToolCalls {
			if name, ok := matchToolName(resp.ToolCalls[i].Name, toolNames); ok {
				resp.ToolCalls[i].Name = name
			}
		}
		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tools run one after another so steps keep invocation order.
		for _, tc := range resp.ToolCalls {
			value, text := e.executeTool(ctx, req.Tools, tc)
			result.Steps = append(result.Steps, domain.Step{
				Action: domain.AgentAction{
					ToolName:  tc.Name,
					ToolInput: toolInput(tc.Arguments),
					Rationale: rationale(resp.Content, tc),
				},
				Result: value,
			})
			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    text,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	e.logger.Info("agent step budget exhausted", "max_steps", maxSteps, "steps", len(result.Steps))
	result.Output = StoppedOutput
	return result, nil
}

// executeTool returns the structured result for the step record and its
// textual form for the model.
func (e *Executor) executeTool(ctx context.Context, tools *tool.Registry, tc domain.ToolCall) (any, string) {
	e.logger.Info("executing tool", "tool", tc.Name)

	if tools == nil {
		msg := fmt.Sprintf("Error executing tool %s: no tools available", tc.Name)
		return msg, msg
	}
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		if argsJSON, err := json.Marshal(tc.Arguments); err == nil {
			e.logger.Debug("tool arguments", "tool", tc.Name, "args", string(argsJSON))
		}
	}

	value, err := tools.Invoke(ctx, tc.Name, tc.Arguments)
	e.metrics.RecordToolCall(tc.Name, err)
	if err != nil {
		msg := fmt.Sprintf("Error executing tool %s: %s", tc.Name, err.Error())
		e.logger.Warn("tool failed", "tool", tc.Name, "err", err)
		return msg, msg
	}

	text, ok := value.(string)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			text = fmt.Sprintf("%v", value)
		} else {
			text = string(data)
		}
	}
	e.logger.Debug("tool completed", "tool", tc.Name, "result_len", len(text))
	return value, text
}

// toolInput renders arguments the way single-input tools receive them: the
// bare string when there is exactly one string argument, JSON otherwise.
func toolInput(args map[string]any) string {
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

func rationale(content string, tc domain.ToolCall) string {
	if content != "" {
		return content
	}
	return fmt.Sprintf("Invoking: `%s` with `%s`", tc.Name, toolInput(tc.Arguments))
}
