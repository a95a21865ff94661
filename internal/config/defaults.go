package config

const (
	AgentRouted      = "default_agent"
	AgentToolsOnly   = "default_agent_without_routing"
	AgentDirectChat  = "Chatbot"
	ModelBedrock     = "Bedrock"
	DefaultPeerFunc  = "sagemind-autogen-code"
	DefaultEmbedding = "CSDC"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:       "~/.palette/workspace",
			LogLevel:        "info",
			DefaultProvider: "openai",
			RateLimitPerMin: 30,
			RateBurst:       5,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      true,
				Mode:         "api",
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
			"bedrock": {
				Enabled:      false,
				Mode:         "managed",
				Region:       "us-east-1",
				DefaultModel: "anthropic.claude-3-sonnet-20240229-v1:0",
				MaxTokens:    4096,
			},
			"claude": {
				Enabled:      false,
				Mode:         "api",
				DefaultModel: "claude-sonnet-4-5",
				MaxTokens:    4096,
			},
		},
		Palette: PaletteConfig{
			AgentID:           AgentRouted,
			Text2TextModel:    "OpenAI",
			HighCapacityModel: ModelBedrock,
			ModelProviders: map[string]string{
				"OpenAI":     "openai",
				ModelBedrock: "bedrock",
				"Claude":     "claude",
			},
			Temperature:       0.1,
			ChatHistoryWindow: 10,
			IsAdmin:           "False",
			K:                 3,
			EmbeddingModel:    DefaultEmbedding,
			ClassifierTimeout: 30,
			AgentTimeout:      300,
			StepsHighCapacity: 12,
			StepsDefault:      6,
		},
		Peer: PeerConfig{
			Transport:    "lambda",
			FunctionName: DefaultPeerFunc,
			Region:       "us-east-1",
			Timeout:      900,
		},
		Memory: MemoryConfig{
			Backend:              "sqlite",
			DBPath:               "~/.palette/palette.db",
			MaxHistoryPerSession: 100,
		},
		Knowledge: KnowledgeConfig{
			DBPath:       "~/.palette/knowledge.db",
			Bases:        []string{"cei", "dth"},
			ChunkSize:    512,
			ChunkOverlap: 50,
		},
		Tools: ToolsConfig{
			AttachmentsDir:    "~/.palette/files",
			YouTubeMaxResults: 2,
			ArxivMaxResults:   3,
			ArxivAPIBase:      "https://export.arxiv.org/api/query",
			AWSRegion:         "us-east-1",
			HTTPTimeout:       30,
		},
		Images: ImageConfig{
			Enabled: false,
			Model:   "dall-e-3",
			Size:    "1024x1024",
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
			Version: "0.0",
		},
		Telegram: TelegramConfig{
			Enabled:   false,
			ParseMode: "Markdown",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
