package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gemdesk.app/gemdesk/internal/domain"
)

func TestInitializeRequiresCredential(t *testing.T) {
	gw := New(zap.NewNop(), time.Minute)

	err := gw.Initialize(context.Background(), &domain.Configuration{ModelName: "gemini-1.5-flash"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = gw.Initialize(context.Background(), &domain.Configuration{APIKey: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = gw.Initialize(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestCurrentModelBeforeInitialize(t *testing.T) {
	gw := New(zap.NewNop(), time.Minute)

	_, err := gw.CurrentModel()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCurrentModelAfterInitialize(t *testing.T) {
	gw := New(zap.NewNop(), time.Minute)
	require.NoError(t, gw.Initialize(context.Background(), &domain.Configuration{
		APIKey: "test-key",
	}))

	model, err := gw.CurrentModel()
	require.NoError(t, err)
	require.NotNil(t, model)

	// An empty model name falls back to the default.
	handle, ok := model.(*modelHandle)
	require.True(t, ok)
	assert.Equal(t, domain.DefaultModelName, handle.model)
}

func TestBuildGenerateConfigDefaults(t *testing.T) {
	cfg := buildGenerateConfig(nil)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, cfg.ResponseModalities)
	assert.Nil(t, cfg.Temperature)
}

func TestBuildGenerateConfigMapsOptions(t *testing.T) {
	temp := float32(0.2)
	topP := float32(0.9)
	topK := float32(32)
	cfg := buildGenerateConfig(&domain.GenerateOptions{
		Temperature:        &temp,
		TopP:               &topP,
		TopK:               &topK,
		MaxOutputTokens:    2048,
		ResponseModalities: []string{"Text"},
		ResponseMIMEType:   "text/plain",
	})

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, float64(*cfg.Temperature), 1e-6)
	require.NotNil(t, cfg.TopP)
	require.NotNil(t, cfg.TopK)
	assert.Equal(t, int32(2048), cfg.MaxOutputTokens)
	assert.Equal(t, "text/plain", cfg.ResponseMIMEType)
	// Modalities are normalized to the service's uppercase form.
	assert.Equal(t, []string{"TEXT"}, cfg.ResponseModalities)
}
