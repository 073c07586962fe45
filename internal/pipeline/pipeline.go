// Package pipeline executes one send-and-receive exchange with the remote
// generative service: it turns a composed turn (text plus ordered image
// attachments) into a remote request and the reply into a stored message.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/domain"
	"gemdesk.app/gemdesk/internal/state"
)

type Pipeline struct {
	state  *state.Store
	models domain.ModelProvider
	log    *zap.Logger
}

func New(st *state.Store, models domain.ModelProvider, log *zap.Logger) *Pipeline {
	return &Pipeline{state: st, models: models, log: log}
}

// Send relays one user turn to the remote model and appends both sides of
// the exchange to the selected session. The user message is appended before
// the network call, so the user's own turn is visible regardless of the
// outcome; on any later fault no model message is stored and the fault is
// returned for the caller to surface.
func (p *Pipeline) Send(ctx context.Context, text string, images []string) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return nil, domain.ErrEmptyMessage
	}
	// Capture the session once: the selection can change (or vanish) while
	// the remote call is in flight, and this exchange belongs to the session
	// it started in.
	current := p.state.Current()
	if current == nil {
		return nil, domain.ErrNoSession
	}

	// Resolve the model handle first: an unconfigured gateway should block
	// the send before anything is appended.
	model, err := p.models.CurrentModel()
	if err != nil {
		return nil, err
	}

	userMsg := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
		Images:    images,
	}
	if err := p.state.AppendMessage(userMsg); err != nil {
		return nil, err
	}

	payloads := make([]domain.ImagePayload, 0, len(images))
	for i, img := range images {
		payload, err := domain.DecodeDataURL(img)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attached image %d: %w", i+1, err)
		}
		payloads = append(payloads, payload)
	}

	reply, err := model.Generate(ctx, text, payloads)
	if err != nil {
		p.log.Warn("generation failed",
			zap.String("session_id", current.ID), zap.Error(err))
		return nil, err
	}
	if reply.Text == "" && len(reply.Images) == 0 {
		return nil, domain.ErrNoContent
	}

	replyImages := make([]string, 0, len(reply.Images))
	for _, img := range reply.Images {
		replyImages = append(replyImages, domain.EncodeDataURL(img.MIMEType, img.Data))
	}

	modelMsg := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleModel,
		Content:   reply.Text,
		Timestamp: time.Now(),
		Images:    replyImages,
	}
	if err := p.state.AppendMessage(modelMsg); err != nil {
		return nil, err
	}
	return &modelMsg, nil
}
