package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/synthesis"
)

func TestModelResolverRebuildsAfterChange(t *testing.T) {
	clearGeminiEnv(t)
	emitter := event.NewEmitter()
	svc := NewModelServiceWithPath(filepath.Join(t.TempDir(), "models.json"))
	svc.emitter = emitter
	r := NewModelResolver(svc, "local", "local-image")
	defer r.InvalidateOnChange(emitter)()
	ctx := context.Background()

	_, err := r.Generate(ctx, "hello")
	require.ErrorIs(t, err, apperr.ErrTransport)
	for _, err := range r.Stream(ctx, synthesis.Request{}) {
		require.ErrorIs(t, err, apperr.ErrTransport)
	}

	require.NoError(t, svc.save([]*models.ModelConfig{
		{ID: "1", Name: "local", Provider: "ollama", Model: "llama3", BaseUrl: "http://127.0.0.1:11434"},
	}))
	text, images, err := r.resolve(ctx)
	require.NoError(t, err)
	assert.NotNil(t, text)
	assert.Nil(t, images)

	_, err = r.EditImage(ctx, synthesis.Image{}, "remix")
	require.ErrorIs(t, err, synthesis.ErrNoImageModel)

	// Deleting the model is picked up on the next request.
	require.NoError(t, svc.save(nil))
	_, _, err = r.resolve(ctx)
	require.ErrorIs(t, err, apperr.ErrTransport)
}
