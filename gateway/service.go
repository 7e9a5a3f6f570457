// Package gateway is the HTTP surface of the document-processing service.
//
// It classifies uploads, routes them through the conversion back-ends
// (office converter, rasterizer) and the parsing back-ends (structured
// parser pool, VLM pool), and maps pipeline failures to the wire error
// taxonomy. The parser profile is fixed at construction from which pools
// are configured and never changes afterwards.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/parsegate/parsegate/docling"
	"github.com/parsegate/parsegate/office"
	"github.com/parsegate/parsegate/raster"
	"github.com/parsegate/parsegate/vlm"
)

// Profile names the parser pipeline family selected at startup.
type Profile string

const (
	// ProfileHybrid uses the structured parser for layout and the VLM for
	// embedded images. Requires both pools.
	ProfileHybrid Profile = "hybrid"
	// ProfileStructuredOnly uses the structured parser with image
	// placeholders. No OCR of image content.
	ProfileStructuredOnly Profile = "structured_only"
	// ProfileVLMOnly rasterizes documents and runs OCR page by page.
	ProfileVLMOnly Profile = "vlm_only"
	// ProfileFallbackText extracts plain text locally. The only profile
	// with no OCR at all.
	ProfileFallbackText Profile = "fallback_text"
)

// Service wires the back-ends together. Immutable after New.
type Service struct {
	cfg        *Config
	logger     *slog.Logger
	office     *office.Converter
	rasterizer *raster.Rasterizer
	docling    *docling.Pool // nil unless configured
	vlm        *vlm.Pool     // nil unless configured
	profile    Profile
}

// New builds a Service from cfg. Pools are created only when configured;
// the parser profile follows from which pools exist.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		logger: logger,
		office: office.New(office.Config{
			SofficePath: cfg.Convert.SofficePath,
			Timeout:     cfg.Convert.Timeout,
			Logger:      logger,
		}),
		rasterizer: raster.New(raster.Config{Logger: logger}),
	}

	if len(cfg.Parser.Docling.BaseURLs) > 0 {
		pool, err := docling.New(docling.Config{
			BaseURLs:      cfg.Parser.Docling.BaseURLs,
			Timeout:       cfg.Parser.Docling.Timeout,
			MaxBufferSize: cfg.Parser.Docling.MaxBufferSize,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("docling pool: %w", err)
		}
		s.docling = pool
	}

	if len(cfg.Parser.VLM.Servers) > 0 {
		servers := make([]vlm.Server, 0, len(cfg.Parser.VLM.Servers))
		for _, srv := range cfg.Parser.VLM.Servers {
			servers = append(servers, vlm.Server{BaseURL: srv.BaseURL, Model: srv.Model})
		}
		pool, err := vlm.New(vlm.Config{
			Servers:             servers,
			Timeout:             cfg.Parser.VLM.Timeout,
			MaxTokens:           cfg.Parser.VLM.MaxTokens,
			Temperature:         cfg.Parser.VLM.Temperature,
			DefaultPrompt:       cfg.Parser.VLM.DefaultPrompt,
			EmbeddedImagePrompt: cfg.Parser.VLM.EmbeddedImagePrompt,
			Logger:              logger,
		})
		if err != nil {
			return nil, fmt.Errorf("vlm pool: %w", err)
		}
		s.vlm = pool
	}

	s.profile = selectProfile(s.docling != nil, s.vlm != nil)
	logger.Info("parser profile selected",
		"profile", string(s.profile),
		"docling_endpoints", poolSize(s.docling),
		"vlm_endpoints", vlmSize(s.vlm))

	return s, nil
}

// Profile returns the profile fixed at construction.
func (s *Service) Profile() Profile { return s.profile }

func selectProfile(hasDocling, hasVLM bool) Profile {
	switch {
	case hasDocling && hasVLM:
		return ProfileHybrid
	case hasDocling:
		return ProfileStructuredOnly
	case hasVLM:
		return ProfileVLMOnly
	default:
		return ProfileFallbackText
	}
}

func poolSize(p *docling.Pool) int {
	if p == nil {
		return 0
	}
	return p.Size()
}

func vlmSize(p *vlm.Pool) int {
	if p == nil {
		return 0
	}
	return p.Size()
}
