package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"palette/internal/domain"
)

const defaultImageModel = "dall-e-3"

// ImagesAPI is the subset of the OpenAI images service used by ImageGen.
type ImagesAPI interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// ImageGen implements domain.ImageGenerator on the OpenAI images endpoint.
type ImageGen struct {
	images ImagesAPI
	model  string
	size   string
	logger *slog.Logger
}

type ImageGenConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Size    string
	Images  ImagesAPI // overrides the SDK service, mainly for tests
	Logger  *slog.Logger
}

func NewImageGen(cfg ImageGenConfig) *ImageGen {
	if cfg.Model == "" {
		cfg.Model = defaultImageModel
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	images := cfg.Images
	if images == nil {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(SharedHTTPClient(defaultHTTPTimeout)),
		}
		if cfg.APIBase != "" {
			opts = append(opts, option.WithBaseURL(cfg.APIBase))
		}
		client := openai.NewClient(opts...)
		images = &client.Images
	}
	return &ImageGen{images: images, model: cfg.Model, size: cfg.Size, logger: cfg.Logger}
}

func (g *ImageGen) Model() string { return g.model }

// Generate renders count images for description. Models that only render
// one image per request are called once per image.
func (g *ImageGen) Generate(ctx context.Context, description string, count int) (*domain.ImageResult, error) {
	if description == "" {
		return nil, errors.New("image description is empty")
	}
	if count < 1 {
		count = 1
	}

	perCall := int64(count)
	calls := 1
	if g.model == defaultImageModel {
		perCall, calls = 1, count
	}

	out := &domain.ImageResult{Model: g.model}
	for i := 0; i < calls; i++ {
		resp, err := g.images.Generate(ctx, openai.ImageGenerateParams{
			Prompt:         description,
			Model:          openai.ImageModel(g.model),
			N:              openai.Int(perCall),
			Size:           openai.ImageGenerateParamsSize(g.size),
			ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		})
		if err != nil {
			return nil, fmt.Errorf("generate image %d/%d: %w", i+1, calls, err)
		}
		for _, img := range resp.Data {
			if img.URL != "" {
				out.URLs = append(out.URLs, img.URL)
			}
		}
	}
	g.logger.Debug("images generated", "model", g.model, "requested", count, "returned", len(out.URLs))
	return out, nil
}
