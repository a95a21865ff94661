package palette

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"palette/internal/config"
	"palette/internal/domain"
)

// ImageStrategy hands image requests to the image generator. It never
// writes to the conversation record.
type ImageStrategy struct {
	gen    domain.ImageGenerator
	rt     config.Runtime
	logger *slog.Logger
}

func NewImageStrategy(gen domain.ImageGenerator, rt config.Runtime, logger *slog.Logger) *ImageStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageStrategy{gen: gen, rt: rt, logger: logger}
}

// Generate asks the generator for count images. The generator only returns
// URLs and the model name; the envelope is built here and returned without
// further changes by the router.
func (s *ImageStrategy) Generate(ctx context.Context, description string, count int) (domain.ResponseEnvelope, error) {
	if s.gen == nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("image generation: %w (images.enabled is false)", config.ErrMissing)
	}
	if count < 1 {
		count = 1
	}
	s.logger.Info("generating images", "session", s.rt.SessionID, "count", count)

	res, err := s.gen.Generate(ctx, description, count)
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("generate images: %w", err)
	}

	md := BaseMetadata(s.rt)
	md.ImageModel = res.Model
	md.Images = res.URLs
	return Envelope(s.rt.SessionID, imageMarkdown(description, res.URLs), md), nil
}

func imageMarkdown(description string, urls []string) string {
	if len(urls) == 0 {
		return "No image was generated."
	}
	alt := strings.ReplaceAll(description, "]", "")
	if alt == "" {
		alt = "image"
	}
	links := make([]string, len(urls))
	for i, u := range urls {
		links[i] = fmt.Sprintf("![%s](%s)", alt, u)
	}
	return strings.Join(links, "\n\n")
}
