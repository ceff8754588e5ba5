package service

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

// ModelResolver is a Completer and ImageEditor that builds the configured
// models on first use and rebuilds them after the model list changes. The
// server can start before any model is configured; requests then fail with
// a transport error.
type ModelResolver struct {
	models     *ModelService
	chatModel  string
	imageModel string

	mu       sync.Mutex
	text     synthesis.Completer
	images   synthesis.ImageEditor
	resolved bool

	logger *slog.Logger
}

var (
	_ synthesis.Completer   = (*ModelResolver)(nil)
	_ synthesis.ImageEditor = (*ModelResolver)(nil)
)

func NewModelResolver(models *ModelService, chatModel, imageModel string) *ModelResolver {
	return &ModelResolver{
		models:     models,
		chatModel:  chatModel,
		imageModel: imageModel,
		logger:     utils.GetLogger(),
	}
}

// Invalidate drops the cached models; the next request resolves them again.
func (r *ModelResolver) Invalidate() {
	r.mu.Lock()
	r.text, r.images, r.resolved = nil, nil, false
	r.mu.Unlock()
}

// InvalidateOnChange invalidates the cache on every ConfigChanged event until
// the returned function is called.
func (r *ModelResolver) InvalidateOnChange(emitter *event.Emitter) func() {
	return emitter.On(event.ConfigChanged, func(event.Event) {
		r.logger.Info("Model configuration changed, models will be rebuilt")
		r.Invalidate()
	})
}

func (r *ModelResolver) resolve(ctx context.Context) (synthesis.Completer, synthesis.ImageEditor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.text, r.images, nil
	}
	text, images, err := r.models.NewCompleter(ctx, r.chatModel, r.imageModel)
	if err != nil {
		return nil, nil, apperr.Transport("resolve_model", err)
	}
	r.text, r.images, r.resolved = text, images, true
	return text, images, nil
}

func (r *ModelResolver) Stream(ctx context.Context, req synthesis.Request) iter.Seq2[string, error] {
	text, _, err := r.resolve(ctx)
	if err != nil {
		return func(yield func(string, error) bool) { yield("", err) }
	}
	return text.Stream(ctx, req)
}

func (r *ModelResolver) Generate(ctx context.Context, prompt string) (string, error) {
	text, _, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	return text.Generate(ctx, prompt)
}

func (r *ModelResolver) GenerateJSON(ctx context.Context, prompt string, schema *synthesis.Schema) (string, error) {
	text, _, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	return text.GenerateJSON(ctx, prompt, schema)
}

func (r *ModelResolver) EditImage(ctx context.Context, img synthesis.Image, instruction string) ([]synthesis.Part, error) {
	_, images, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if images == nil {
		return nil, synthesis.ErrNoImageModel
	}
	return images.EditImage(ctx, img, instruction)
}
