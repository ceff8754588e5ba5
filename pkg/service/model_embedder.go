package service

import (
	"context"
	"fmt"
	"os"

	arkEmbed "github.com/cloudwego/eino-ext/components/embedding/ark"
	dashscopeEmbed "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	qianfanEmbed "github.com/cloudwego/eino-ext/components/embedding/qianfan"
	"github.com/cloudwego/eino-ext/components/model/qianfan"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"

	"github.com/doclens/doclens/pkg/config"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/synthesis"
)

const (
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
	defaultOllamaURL            = "http://localhost:11434"
)

// CreateEmbedder creates an eino embedder from a text_embedding model config.
func (m *ModelService) CreateEmbedder(ctx context.Context, config *models.ModelConfig) (embedding.Embedder, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case "openai", "custom":
		embedder, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedder: %w", err)
		}
		return embedder, nil

	case "ollama":
		baseURL := config.BaseUrl
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		embedder, err := ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama embedder: %w", err)
		}
		return embedder, nil

	case "ark":
		embedder, err := arkEmbed.NewEmbedder(ctx, &arkEmbed.EmbeddingConfig{
			BaseURL: config.BaseUrl,
			Region:  config.ExtraString("region"),
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ark embedder: %w", err)
		}
		return embedder, nil

	case "google":
		client, err := synthesis.NewGenaiClient(ctx, config.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		embedder, err := geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Client: client,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedder: %w", err)
		}
		return embedder, nil

	case "dashscope", "qwen":
		embedder, err := dashscopeEmbed.NewEmbedder(ctx, &dashscopeEmbed.EmbeddingConfig{
			APIKey: config.ApiKey,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DashScope embedder: %w", err)
		}
		return embedder, nil

	case "qianfan":
		qianfanConfig := qianfan.GetQianfanSingletonConfig()
		qianfanConfig.BaseURL = config.BaseUrl
		qianfanConfig.BearerToken = config.ApiKey
		embedder, err := qianfanEmbed.NewEmbedder(ctx, &qianfanEmbed.EmbeddingConfig{
			Model: config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qianfan embedder: %w", err)
		}
		return embedder, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Provider)
	}
}

// CreateEmbeddingFunc returns a chromem embedding function backed by CreateEmbedder.
func (m *ModelService) CreateEmbeddingFunc(ctx context.Context, config *models.ModelConfig) (chromem.EmbeddingFunc, error) {
	embedder, err := m.CreateEmbedder(ctx, config)
	if err != nil {
		return nil, err
	}
	return embeddingFuncFromEmbedder(embedder), nil
}

// embeddingFuncFromEmbedder wraps eino Embedder as chromem.EmbeddingFunc
func embeddingFuncFromEmbedder(embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embeddings, err := embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		// Convert []float64 to []float32
		result := make([]float32, len(embeddings[0]))
		for i, v := range embeddings[0] {
			result[i] = float32(v)
		}
		return result, nil
	}
}

// ConceptEmbeddingFunc resolves the embedding function for the concept index.
// A models.json entry matching cfg.Model with the text_embedding task wins;
// otherwise openai and ollama fall back to chromem's built-in clients.
// It returns nil, nil when embeddings are not configured.
func (m *ModelService) ConceptEmbeddingFunc(ctx context.Context, cfg config.EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	if cfg.Provider == "" && cfg.Model == "" {
		return nil, nil
	}

	if cfg.Model != "" {
		modelConfig, err := m.GetModelConfig(cfg.Model)
		if err != nil {
			return nil, err
		}
		if modelConfig != nil && modelConfig.HasTask(models.TaskTypeTextEmbedding) &&
			(cfg.Provider == "" || cfg.Provider == modelConfig.Provider) {
			embed, err := m.CreateEmbeddingFunc(ctx, modelConfig)
			if err == nil {
				m.logger.Info("Concept index uses configured embedder", "provider", modelConfig.Provider, "model", modelConfig.Model)
				return embed, nil
			}
			m.logger.Warn("Failed to create embedder, trying fallback", "provider", modelConfig.Provider, "error", err)
		}
	}

	switch cfg.Provider {
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedding provider openai requires an API key")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIEmbeddingModel
		}
		return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), nil

	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = defaultOllamaURL + "/api"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaEmbeddingModel
		}
		return chromem.NewEmbeddingFuncOllama(model, url), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
