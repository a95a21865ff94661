package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"palette/internal/domain"
)

const claudeDefaultModel = "claude-sonnet-4-5"

// MessagesClient is the subset of the Anthropic SDK used by Claude. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Claude implements domain.Provider on the Anthropic Messages API.
type Claude struct {
	msg       MessagesClient
	hasKey    bool
	model     string
	maxTokens int
	logger    *slog.Logger
}

type ClaudeConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	MaxTokens int
	Messages  MessagesClient // overrides the SDK client, mainly for tests
	Logger    *slog.Logger
}

func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.Model == "" {
		cfg.Model = claudeDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	msg := cfg.Messages
	if msg == nil {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(SharedHTTPClient(defaultHTTPTimeout)),
		}
		if cfg.APIBase != "" {
			opts = append(opts, option.WithBaseURL(cfg.APIBase))
		}
		ac := sdk.NewClient(opts...)
		msg = &ac.Messages
	}
	return &Claude{
		msg:       msg,
		hasKey:    cfg.APIKey != "" || cfg.Messages != nil,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

func (c *Claude) Name() string              { return "claude" }
func (c *Claude) Mode() domain.ProviderMode { return domain.ModeAPI }
func (c *Claude) Models() []string          { return []string{c.model} }
func (c *Claude) SupportsToolCalling() bool { return true }

func (c *Claude) Healthy(ctx context.Context) error {
	if !c.hasKey {
		return errors.New("claude: no API key configured")
	}
	return nil
}

func (c *Claude) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	names, err := newToolNames(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	conversation, system := encodeClaudeMessages(req.Messages, names)
	params := sdk.MessageNewParams{
		MaxTokens:   int64(maxTokens),
		Messages:    conversation,
		Model:       sdk.Model(model),
		Temperature: sdk.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}
	for _, t := range req.Tools {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.Parameters}, names.wire(t.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		params.Tools = append(params.Tools, u)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("claude messages.new: %w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("claude messages.new: %w", err)
	}

	out := &domain.ChatResponse{
		FinishReason: normalizeFinish(string(msg.StopReason)),
		Usage: domain.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := make(map[string]any)
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					c.logger.Warn("claude tool input is not an object", "tool", block.Name, "err", err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      names.canonical(block.Name),
				Arguments: args,
			})
		}
	}
	out.Content = strings.Join(text, "")
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

// encodeClaudeMessages splits out system text and folds consecutive tool
// results into a single user turn.
func encodeClaudeMessages(msgs []domain.Message, names *toolNames) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	var conversation []sdk.MessageParam
	var system []sdk.TextBlockParam
	var pendingResults []sdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "tool":
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case "assistant":
			flush()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, names.wire(tc.Name)))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		default:
			flush()
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	flush()
	return conversation, system
}
