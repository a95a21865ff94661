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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"palette/internal/awsclient"
	"palette/internal/domain"
)

const bedrockDefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"

// ConverseAPI is the subset of *bedrockruntime.Client used by Bedrock.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock implements domain.Provider on the Bedrock Converse API. It is the
// managed-mode backend: requests are signed with account credentials.
type Bedrock struct {
	runtime   ConverseAPI
	creds     aws.CredentialsProvider
	region    string
	model     string
	maxTokens int
	logger    *slog.Logger
}

type BedrockConfig struct {
	Region      string
	Model       string
	MaxTokens   int
	Credentials aws.CredentialsProvider
	Runtime     ConverseAPI // overrides the SDK client, mainly for tests
	Logger      *slog.Logger
}

func NewBedrock(cfg BedrockConfig) *Bedrock {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Region == "" || cfg.Credentials == nil {
		awsCfg, err := awsclient.Load(context.Background(), cfg.Region)
		if err != nil {
			cfg.Logger.Warn("bedrock: aws config unavailable", "err", err)
			awsCfg.Region = awsclient.DefaultRegion
		}
		if cfg.Region == "" {
			cfg.Region = awsCfg.Region
		}
		if cfg.Credentials == nil {
			cfg.Credentials = awsCfg.Credentials
		}
	}
	if cfg.Model == "" {
		cfg.Model = bedrockDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	rt := cfg.Runtime
	if rt == nil {
		rt = bedrockruntime.New(bedrockruntime.Options{
			Region:      cfg.Region,
			Credentials: cfg.Credentials,
			HTTPClient:  SharedHTTPClient(defaultHTTPTimeout),
		})
	}
	return &Bedrock{
		runtime:   rt,
		creds:     cfg.Credentials,
		region:    cfg.Region,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

func (b *Bedrock) Name() string              { return "bedrock" }
func (b *Bedrock) Mode() domain.ProviderMode { return domain.ModeManaged }
func (b *Bedrock) Models() []string          { return []string{b.model} }
func (b *Bedrock) SupportsToolCalling() bool { return true }

func (b *Bedrock) Healthy(ctx context.Context) error {
	if err := awsclient.CheckCredentials(ctx, aws.Config{Credentials: b.creds}); err != nil {
		return fmt.Errorf("bedrock: %w", err)
	}
	return nil
}

func (b *Bedrock) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = b.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	names, err := newToolNames(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	messages, system := encodeBedrockMessages(req.Messages, names)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)), //nolint:gosec // bounded by config validation
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(req.Tools) > 0 {
		tools := make([]brtypes.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
				Name:        aws.String(names.wire(t.Name)),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.Parameters)},
			}})
		}
		input.ToolConfig = &brtypes.ToolConfiguration{Tools: tools}
	}

	output, err := b.runtime.Converse(ctx, input)
	if err != nil {
		if isThrottled(err) {
			return nil, fmt.Errorf("bedrock converse: %w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	out := &domain.ChatResponse{FinishReason: normalizeFinish(string(output.StopReason))}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var text []string
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text = append(text, v.Value)
			case *brtypes.ContentBlockMemberToolUse:
				args := make(map[string]any)
				if v.Value.Input != nil {
					if raw, err := v.Value.Input.MarshalSmithyDocument(); err == nil && len(raw) > 0 {
						if err := json.Unmarshal(raw, &args); err != nil {
							b.logger.Warn("bedrock tool input is not an object", "err", err)
						}
					}
				}
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
					ID:        aws.ToString(v.Value.ToolUseId),
					Name:      names.canonical(aws.ToString(v.Value.Name)),
					Arguments: args,
				})
			}
		}
		out.Content = strings.Join(text, "")
	}
	if u := output.Usage; u != nil {
		in, outTok := int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens))
		out.Usage = domain.Usage{PromptTokens: in, CompletionTokens: outTok, TotalTokens: in + outTok}
	}
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

func encodeBedrockMessages(msgs []domain.Message, names *toolNames) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var conversation []brtypes.Message
	var system []brtypes.SystemContentBlock

	appendBlocks := func(role brtypes.ConversationRole, blocks ...brtypes.ContentBlock) {
		if n := len(conversation); n > 0 && conversation[n-1].Role == role {
			conversation[n-1].Content = append(conversation[n-1].Content, blocks...)
			return
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case "tool":
			appendBlocks(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
			}})
		case "assistant":
			var blocks []brtypes.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(names.wire(tc.Name)),
					Input:     document.NewLazyDocument(tc.Arguments),
				}})
			}
			if len(blocks) > 0 {
				appendBlocks(brtypes.ConversationRoleAssistant, blocks...)
			}
		default:
			appendBlocks(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberText{Value: m.Content})
		}
	}
	return conversation, system
}

func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusTooManyRequests
}
