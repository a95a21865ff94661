package palette

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"palette/internal/agent"
	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/memory"
	"palette/internal/metrics"
	"palette/internal/peer"
	"palette/internal/tool"
)

const tracerName = "palette/internal/palette"

// RunMode is fixed when a Router is built and never changes mid-run.
type RunMode int

const (
	RunModeRouted RunMode = iota
	RunModeToolsOnly
	RunModeDirectChat
)

func (m RunMode) String() string {
	switch m {
	case RunModeToolsOnly:
		return "tools_only"
	case RunModeDirectChat:
		return "direct_chat"
	default:
		return "routed"
	}
}

// ModeForAgent maps an agent id to its run mode. Unknown ids are routed.
func ModeForAgent(agentID string) RunMode {
	switch agentID {
	case config.AgentToolsOnly:
		return RunModeToolsOnly
	case config.AgentDirectChat:
		return RunModeDirectChat
	default:
		return RunModeRouted
	}
}

// Strategy names used in logs, spans and metrics.
const (
	StrategyImage      = "image"
	StrategyArithmetic = "arithmetic"
	StrategyToolAgent  = "tool_agent"
	StrategyDirectChat = "direct_chat"
)

// ProviderResolver resolves a run's model name to a provider.
type ProviderResolver interface {
	ForModel(model string) (domain.Provider, error)
}

// Deps are the long-lived collaborators shared by every run.
type Deps struct {
	Providers   ProviderResolver
	Images      domain.ImageGenerator // nil disables the image route
	Peer        peer.Invoker
	Store       domain.ConversationStore
	Retriever   domain.Retriever
	Attachments *tool.Attachments
	EC2         *tool.EC2
	HTTPClient  *http.Client
	Tools       config.ToolsConfig
	RateLimiter *agent.RateLimiter
	Metrics     *metrics.Registry
	Now         tool.Clock
	Logger      *slog.Logger
}

// Router runs one question through classification and the chosen strategy.
// A Router is bound to one Runtime; build a new one per run.
type Router struct {
	deps   Deps
	rt     config.Runtime
	mode   RunMode
	window *memory.Window
	tracer trace.Tracer
	logger *slog.Logger
}

func NewRouter(deps Deps, rt config.Runtime) (*Router, error) {
	if deps.Providers == nil {
		return nil, errors.New("palette: no provider resolver")
	}
	if deps.Store == nil {
		return nil, errors.New("palette: no conversation store")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("session", rt.SessionID)
	return &Router{
		deps: deps,
		rt:   rt,
		mode: ModeForAgent(rt.AgentID),
		window: memory.NewWindow(memory.WindowConfig{
			Store:     deps.Store,
			SessionID: rt.SessionID,
			K:         rt.HistoryWindow,
			Logger:    logger,
		}),
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}, nil
}

// Mode reports the router's run mode.
func (r *Router) Mode() RunMode { return r.mode }

// Run classifies the question once, dispatches it and returns exactly one
// envelope. Errors are returned only when no envelope can be produced.
func (r *Router) Run(ctx context.Context, question string) (env domain.ResponseEnvelope, err error) {
	ctx, span := r.tracer.Start(ctx, "palette.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("palette.session_id", r.rt.SessionID),
			attribute.String("palette.mode", r.mode.String()),
			attribute.String("palette.model", r.rt.Model),
		))
	defer span.End()

	finish := r.deps.Metrics.StartRun()
	strategy := "unresolved"
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("run failed", "strategy", strategy, "err", err)
		}
		span.SetAttributes(attribute.String("palette.strategy", strategy))
		finish(strategy, outcome)
	}()

	provider, err := r.deps.Providers.ForModel(r.rt.Model)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	switch r.mode {
	case RunModeDirectChat:
		strategy = StrategyDirectChat
		return NewDirectChatStrategy(provider, r.window, r.rt, r.logger).Chat(ctx, question)
	case RunModeToolsOnly:
		strategy = StrategyToolAgent
		return r.toolAgent(provider).Run(ctx, question)
	}

	cl := r.classify(ctx, provider, question)
	r.deps.Metrics.RecordLabel(cl.Label.String())
	span.SetAttributes(attribute.String("palette.label", cl.Label.String()))

	switch cl.Label {
	case LabelImageRequest:
		strategy = StrategyImage
		return NewImageStrategy(r.deps.Images, r.rt, r.logger).Generate(ctx, cl.Image.Description, cl.Image.Count)
	case LabelArithmeticPuzzle:
		strategy = StrategyArithmetic
		return NewArithmeticStrategy(r.deps.Peer, r.window, r.rt, r.logger).Delegate(ctx, question)
	default:
		strategy = StrategyToolAgent
		return r.toolAgent(provider).Run(ctx, question)
	}
}

func (r *Router) classify(ctx context.Context, provider domain.Provider, question string) Classification {
	ctx, span := r.tracer.Start(ctx, "palette.classify", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	cl := NewClassifier(ClassifierConfig{
		Provider: provider,
		Timeout:  r.rt.ClassifierTimeout,
		Logger:   r.logger,
	}).Classify(ctx, question)
	span.SetAttributes(
		attribute.String("palette.label", cl.Label.String()),
		attribute.String("palette.classifier_contract", ClassifierContractVersion),
	)
	r.logger.Info("question classified", "label", cl.Label.String())
	return cl
}

// Toolset assembles the default agent's tools for this run.
func (r *Router) Toolset() *tool.Registry {
	return tool.NewToolset(tool.ToolsetConfig{
		Retriever:         r.deps.Retriever,
		EmbeddingModel:    r.rt.EmbeddingModel,
		K:                 r.rt.K,
		Attachments:       r.deps.Attachments,
		SessionID:         r.rt.SessionID,
		Files:             r.rt.Files,
		HTTPClient:        r.deps.HTTPClient,
		YouTubeMaxResults: r.deps.Tools.YouTubeMaxResults,
		ArxivAPIBase:      r.deps.Tools.ArxivAPIBase,
		ArxivMaxResults:   r.deps.Tools.ArxivMaxResults,
		Privileged:        r.rt.Privileged,
		EC2:               r.deps.EC2,
		Now:               r.deps.Now,
		Logger:            r.logger,
	})
}

func (r *Router) toolAgent(provider domain.Provider) *ToolAgentStrategy {
	executor := agent.NewExecutor(agent.ExecutorConfig{
		Provider:    provider,
		RateLimiter: r.deps.RateLimiter,
		Metrics:     r.deps.Metrics,
		Logger:      r.logger,
	})
	return NewToolAgentStrategy(executor, r.Toolset(), r.window, r.rt, r.logger)
}

// Run is a convenience for callers that route a single question.
func Run(ctx context.Context, deps Deps, rt config.Runtime, question string) (domain.ResponseEnvelope, error) {
	r, err := NewRouter(deps, rt)
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("build router: %w", err)
	}
	return r.Run(ctx, question)
}
