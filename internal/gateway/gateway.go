// Package gateway owns the remote generative service client. The client
// handle lives for the process only; the configuration record it is built
// from is persisted elsewhere, so every process start must reinitialize the
// gateway from the stored record before first use.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"gemdesk.app/gemdesk/internal/domain"
)

const defaultRequestTimeout = 60 * time.Second

type Gateway struct {
	log     *zap.Logger
	timeout time.Duration

	client *genai.Client
	config *domain.Configuration
}

func New(log *zap.Logger, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Gateway{log: log, timeout: timeout}
}

// Initialize validates the configuration, constructs the remote client and
// caches it. Called on every configuration save and once at startup from the
// persisted record.
func (g *Gateway) Initialize(ctx context.Context, cfg *domain.Configuration) error {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return domain.ErrInvalidConfig
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	c := *cfg
	g.client = client
	g.config = &c
	g.log.Info("remote client initialized", zap.String("model", c.ModelName))
	return nil
}

// CurrentModel returns a ready-to-call handle built from the cached client
// and the configuration's model identifier and generation options.
func (g *Gateway) CurrentModel() (domain.GenerativeModel, error) {
	if g.client == nil || g.config == nil {
		return nil, domain.ErrNotInitialized
	}

	model := g.config.ModelName
	if strings.TrimSpace(model) == "" {
		model = domain.DefaultModelName
	}
	return &modelHandle{
		client:  g.client,
		model:   model,
		config:  buildGenerateConfig(g.config.GenerateConfig),
		timeout: g.timeout,
	}, nil
}

// buildGenerateConfig maps stored generation options onto the SDK config.
// Response modalities default to text plus image so multimodal replies work
// without explicit tuning.
func buildGenerateConfig(opts *domain.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityText), string(genai.ModalityImage)},
	}
	if opts == nil {
		return cfg
	}
	cfg.Temperature = opts.Temperature
	cfg.TopP = opts.TopP
	cfg.TopK = opts.TopK
	cfg.MaxOutputTokens = opts.MaxOutputTokens
	if opts.ResponseMIMEType != "" {
		cfg.ResponseMIMEType = opts.ResponseMIMEType
	}
	if len(opts.ResponseModalities) > 0 {
		modalities := make([]string, len(opts.ResponseModalities))
		for i, m := range opts.ResponseModalities {
			modalities[i] = strings.ToUpper(m)
		}
		cfg.ResponseModalities = modalities
	}
	return cfg
}

type modelHandle struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
}

// Generate sends one user turn (text followed by the ordered image parts)
// and normalizes the reply. The call runs under a bounded timeout; a hung
// connection surfaces as a remote-service error rather than blocking forever.
func (h *modelHandle) Generate(ctx context.Context, prompt string, images []domain.ImagePayload) (*domain.GeneratedReply, error) {
	var parts []*genai.Part
	if prompt != "" {
		parts = append(parts, genai.NewPartFromText(prompt))
	}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := h.client.Models.GenerateContent(ctx, h.model, contents, h.config)
	if err != nil {
		if strings.Contains(err.Error(), "deprecated") {
			return nil, fmt.Errorf("%w (model %q)", domain.ErrModelDeprecated, h.model)
		}
		return nil, fmt.Errorf("remote generation failed: %w", err)
	}

	reply := &domain.GeneratedReply{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.InlineData != nil && domain.IsImageMIME(part.InlineData.MIMEType) {
			reply.Images = append(reply.Images, domain.ImagePayload{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	reply.Text = text.String()
	return reply, nil
}
