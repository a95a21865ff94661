package tool

import (
	"log/slog"
	"net/http"

	"palette/internal/domain"
	"palette/internal/knowledge"
)

// ToolsetConfig carries everything the default agent's tools depend on.
type ToolsetConfig struct {
	Retriever      domain.Retriever
	EmbeddingModel string
	K              int

	Attachments *Attachments // nil disables the document reader
	SessionID   string
	Files       []string

	HTTPClient        *http.Client
	YouTubeMaxResults int
	ArxivAPIBase      string
	ArxivMaxResults   int

	// Privileged adds the EC2 lifecycle tools. EC2 must be set when it is true.
	Privileged bool
	EC2        *EC2

	Now    Clock
	Logger *slog.Logger
}

// NewToolset registers the default agent's tools in the order the model
// is shown them.
func NewToolset(cfg ToolsetConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	reg := NewRegistry(cfg.Logger)

	if cfg.Retriever != nil {
		reg.Register(NewRetrieverTool(RetrieverConfig{
			Name:        CEIToolName,
			Description: CEIToolDesc,
			IndexID:     knowledge.IndexName("cei", cfg.EmbeddingModel),
			K:           cfg.K,
			Retriever:   cfg.Retriever,
		}))
		reg.Register(NewRetrieverTool(RetrieverConfig{
			Name:        DTHToolName,
			Description: DTHToolDesc,
			IndexID:     knowledge.IndexName("dth", cfg.EmbeddingModel),
			K:           cfg.K,
			Retriever:   cfg.Retriever,
		}))
	}

	reg.Register(NewWeatherTool())
	reg.Register(NewTodayDateTool(cfg.Now))
	reg.Register(NewTodayWeekdayTool(cfg.Now))
	reg.Register(NewWeekdayOfDateTool())
	reg.Register(NewYouTubeSearchTool(cfg.HTTPClient, cfg.YouTubeMaxResults))
	if cfg.Attachments != nil {
		reg.Register(NewDocumentReaderTool(cfg.Attachments, cfg.SessionID, cfg.Files))
	}
	reg.Register(NewArxivTool(cfg.HTTPClient, cfg.ArxivAPIBase, cfg.ArxivMaxResults))

	if cfg.Privileged {
		if cfg.EC2 == nil {
			cfg.Logger.Warn("privileged run without an EC2 client, instance tools unavailable", "session", cfg.SessionID)
		} else {
			reg.Register(NewListEC2InstancesTool(cfg.EC2))
			reg.Register(NewStartEC2InstanceTool(cfg.EC2))
			reg.Register(NewStopEC2InstanceTool(cfg.EC2))
		}
	}
	return reg
}

// PrivilegedToolNames lists the tools only privileged runs receive.
var PrivilegedToolNames = []string{
	"List EC2 Instances Tool",
	"Start EC2 Instance Tool",
	"Stop EC2 Instance Tool",
}
