package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/config"
	"github.com/doclens/doclens/pkg/models"
)

func newModelRouter(t *testing.T) (*gin.Engine, *ModelService, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "models.json")
	svc := NewModelServiceWithPath(path)
	r := gin.New()
	r.GET("/models", svc.GetModelList)
	r.POST("/models", svc.AddModel)
	r.PUT("/models/:id", svc.EditModel)
	r.DELETE("/models/:id", svc.DeleteModel)
	r.GET("/models/provider-keys", svc.GetProviderApiKeys)
	return r, svc, path
}

func doJSON(t *testing.T, r http.Handler, method, target string, body any) (*httptest.ResponseRecorder, models.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp models.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func clearGeminiEnv(t *testing.T) {
	for _, name := range geminiKeyEnv {
		t.Setenv(name, "")
	}
}

func TestModelCRUD(t *testing.T) {
	r, _, path := newModelRouter(t)

	chat := models.ModelConfig{Name: "flash", Provider: "google", Domain: models.DomainMultimodal, Model: "gemini-3-flash-preview", ApiKey: "sk-1234567890abcd"}
	w, resp := doJSON(t, r, http.MethodPost, "/models", chat)
	require.Equal(t, http.StatusOK, w.Code, resp.Message)

	w, _ = doJSON(t, r, http.MethodPost, "/models", chat)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/models", models.ModelConfig{Name: "x", Provider: "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stored, err := models.LoadModelsFrom(path)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	id := stored[0].ID
	assert.Equal(t, "sk-1234567890abcd", stored[0].ApiKey)

	w, resp = doJSON(t, r, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := resp.Data.([]any)
	require.Len(t, list, 1)
	assert.NotEqual(t, "sk-1234567890abcd", list[0].(map[string]any)["api_key"])

	w, resp = doJSON(t, r, http.MethodGet, "/models?domain=vision", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]any), 1)
	w, resp = doJSON(t, r, http.MethodGet, "/models?task_types=text_embedding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]any), 0)

	edit := chat
	edit.Name = "flash-renamed"
	edit.ApiKey = ""
	w, resp = doJSON(t, r, http.MethodPut, "/models/"+id, edit)
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	stored, err = models.LoadModelsFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "flash-renamed", stored[0].Name)
	assert.Equal(t, "sk-1234567890abcd", stored[0].ApiKey)

	w, resp = doJSON(t, r, http.MethodGet, "/models/provider-keys?provider=google", nil)
	require.Equal(t, http.StatusOK, w.Code)
	keys := resp.Data.(map[string]any)["api_keys"].([]any)
	assert.Len(t, keys, 1)

	w, _ = doJSON(t, r, http.MethodDelete, "/models/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodDelete, "/models/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetModelConfigEnvFallback(t *testing.T) {
	svc := NewModelServiceWithPath(filepath.Join(t.TempDir(), "models.json"))

	clearGeminiEnv(t)
	cfg, err := svc.GetModelConfig("gemini-3-flash-preview")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	t.Setenv("API_KEY", "env-key")
	cfg, err = svc.GetModelConfig("gemini-3-flash-preview")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "google", cfg.Provider)
	assert.Equal(t, "env-key", cfg.ApiKey)
	assert.True(t, cfg.HasTask(models.TaskTypeImageGeneration))
}

func TestGetModelConfigPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, models.SaveModelsTo(path, []*models.ModelConfig{
		{ID: "1", Name: "local", Provider: "ollama", Model: "llama3"},
	}))
	svc := NewModelServiceWithPath(path)
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("HOME", t.TempDir())

	cfg, err := svc.GetModelConfig("llama3")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, models.DomainLanguage, cfg.Domain)
	assert.Equal(t, "http://localhost:11434", cfg.BaseUrl)
}

func TestAddModelFillsPresetDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	r, _, path := newModelRouter(t)

	w, resp := doJSON(t, r, http.MethodPost, "/models", models.ModelConfig{Name: "vision", Provider: "ollama", Model: "llava"})
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	w, resp = doJSON(t, r, http.MethodPost, "/models", models.ModelConfig{Name: "proxy", Provider: "custom", Model: "llava", BaseUrl: "http://proxy:9000/v1"})
	require.Equal(t, http.StatusOK, w.Code, resp.Message)

	stored, err := models.LoadModelsFrom(path)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "http://localhost:11434", stored[0].BaseUrl)
	assert.Equal(t, models.DomainMultimodal, stored[0].Domain)
	assert.True(t, stored[0].HasTask(models.TaskTypeImageUnderstanding))

	assert.Equal(t, "http://proxy:9000/v1", stored[1].BaseUrl)
	assert.Equal(t, models.DomainLanguage, stored[1].Domain)
	assert.Equal(t, []string{models.TaskTypeChat}, stored[1].TaskTypes)
}

func TestNewCompleterRequiresChatModel(t *testing.T) {
	svc := NewModelServiceWithPath(filepath.Join(t.TempDir(), "models.json"))
	clearGeminiEnv(t)
	_, _, err := svc.NewCompleter(context.Background(), "missing", "")
	require.Error(t, err)
}

func TestNewCompleterWithoutImageModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, models.SaveModelsTo(path, []*models.ModelConfig{
		{ID: "1", Name: "local", Provider: "ollama", Model: "llama3", BaseUrl: "http://127.0.0.1:11434"},
	}))
	svc := NewModelServiceWithPath(path)
	clearGeminiEnv(t)

	completer, editor, err := svc.NewCompleter(context.Background(), "local", "no-such-image-model")
	require.NoError(t, err)
	assert.NotNil(t, completer)
	assert.Nil(t, editor)
}

func TestConceptEmbeddingFunc(t *testing.T) {
	svc := NewModelServiceWithPath(filepath.Join(t.TempDir(), "models.json"))
	clearGeminiEnv(t)
	ctx := context.Background()

	embed, err := svc.ConceptEmbeddingFunc(ctx, config.EmbeddingConfig{})
	require.NoError(t, err)
	assert.Nil(t, embed)

	embed, err = svc.ConceptEmbeddingFunc(ctx, config.EmbeddingConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.NotNil(t, embed)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = svc.ConceptEmbeddingFunc(ctx, config.EmbeddingConfig{Provider: "openai"})
	require.Error(t, err)

	_, err = svc.ConceptEmbeddingFunc(ctx, config.EmbeddingConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestCreateEmbedderRejectsUnknownProvider(t *testing.T) {
	svc := NewModelServiceWithPath(filepath.Join(t.TempDir(), "models.json"))
	_, err := svc.CreateEmbedder(context.Background(), &models.ModelConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
	_, err = svc.CreateEmbedder(context.Background(), nil)
	require.Error(t, err)
}

type constEmbedder struct{}

func (constEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.5, 0.25}
	}
	return out, nil
}

func TestEmbeddingFuncFromEmbedder(t *testing.T) {
	vec, err := embeddingFuncFromEmbedder(constEmbedder{})(context.Background(), "attention")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}
