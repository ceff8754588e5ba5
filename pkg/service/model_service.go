package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qianfan"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

// Environment variables that provide a Google model when models.json is empty.
var geminiKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// ModelService manages model credentials in ~/.doclens/models.json and
// builds completion clients from them.
type ModelService struct {
	path    string // empty means the default location
	emitter *event.Emitter
	logger  *slog.Logger
}

func NewModelService() *ModelService {
	return &ModelService{
		emitter: event.Global(),
		logger:  utils.GetLogger(),
	}
}

// NewModelServiceWithPath stores models at path instead of ~/.doclens/models.json.
func NewModelServiceWithPath(path string) *ModelService {
	return &ModelService{path: path, emitter: event.Global(), logger: utils.GetLogger()}
}

func (m *ModelService) load() ([]*models.ModelConfig, error) {
	if m.path == "" {
		return models.LoadModels()
	}
	return models.LoadModelsFrom(m.path)
}

// save writes the model list and announces the change.
func (m *ModelService) save(list []*models.ModelConfig) error {
	var err error
	if m.path == "" {
		err = models.SaveModels(list)
	} else {
		err = models.SaveModelsTo(m.path, list)
	}
	if err != nil {
		return err
	}
	m.emitter.Emit(event.ConfigChangedEvent{})
	return nil
}

// GetModelList fetch model list
// Supports optional query parameters:
// - domain: filter by domain (e.g., "vision", "multimodal", "language")
// - task_types: filter by task type (e.g., "image_generation", "chat")
func (m *ModelService) GetModelList(c *gin.Context) {
	modelsList, err := m.load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to read model list"})
		return
	}

	domainFilter := c.Query("domain")
	taskTypesFilter := c.Query("task_types")

	filteredModels := make([]*models.ModelConfig, 0, len(modelsList))
	for _, mm := range modelsList {
		mm.Normalize()
		mm.ApiKey = utils.MaskSensitiveString(mm.ApiKey)

		if domainFilter != "" && mm.Domain != domainFilter {
			// Multimodal models also serve vision requests
			if !(domainFilter == models.DomainVision && mm.Domain == models.DomainMultimodal) {
				continue
			}
		}
		if taskTypesFilter != "" && !mm.HasTask(taskTypesFilter) {
			continue
		}
		filteredModels = append(filteredModels, mm)
	}

	c.JSON(http.StatusOK, models.Response{Code: 200, Data: filteredModels})
}

// applyPresets fills provider defaults such as the base URL. Without presets
// the model is used as configured.
func (m *ModelService) applyPresets(cfg *models.ModelConfig) {
	presets, err := models.LoadPresets()
	if err != nil {
		m.logger.Warn("Provider presets unavailable", "error", err)
		return
	}
	presets.ApplyDefaults(cfg)
}

func validateModelRequest(req *models.ModelConfig) string {
	if req.Name == "" || req.Provider == "" {
		return "Name and provider required"
	}
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		return "Unsupported model provider"
	}
	if _, ok := models.SupportedDomains[req.Domain]; !ok {
		return "Unsupported model domain"
	}
	for _, t := range req.TaskTypes {
		if _, ok := models.SupportedTaskTypes[t]; !ok {
			return "Unsupported task type: " + t
		}
	}
	return ""
}

// AddModel add a new model
func (m *ModelService) AddModel(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid parameters"})
		return
	}
	m.applyPresets(&req)
	req.Normalize()
	if msg := validateModelRequest(&req); msg != "" {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: msg})
		return
	}
	currentModels, err := m.load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to read model list"})
		return
	}
	for _, mm := range currentModels {
		if mm.Name == req.Name {
			c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Model name already exists"})
			return
		}
	}
	req.ID = uuid.New().String()
	currentModels = append(currentModels, &req)
	if err := m.save(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to save model"})
		return
	}
	m.logger.Info("Model added", "name", req.Name, "provider", req.Provider, "apiKey", utils.MaskSensitiveString(req.ApiKey))
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Added successfully", Data: gin.H{"id": req.ID}})
}

// EditModel update an existing model
func (m *ModelService) EditModel(c *gin.Context) {
	id := c.Param("id")
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid parameters"})
		return
	}
	m.applyPresets(&req)
	req.Normalize()
	if msg := validateModelRequest(&req); msg != "" {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: msg})
		return
	}

	currentModels, err := m.load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to read model list"})
		return
	}
	found := false
	for i, mm := range currentModels {
		if mm.ID != id {
			continue
		}
		for _, other := range currentModels {
			if other.Name == req.Name && other.ID != id {
				c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Model name already exists"})
				return
			}
		}
		// An empty key keeps the stored one; the list endpoint only shows masked keys.
		if req.ApiKey == "" {
			req.ApiKey = mm.ApiKey
		}
		currentModels[i] = &req
		currentModels[i].ID = id
		found = true
		break
	}
	if !found {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "Model not found"})
		return
	}
	if err := m.save(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Updated successfully"})
}

// DeleteModel delete model
func (m *ModelService) DeleteModel(c *gin.Context) {
	id := c.Param("id")
	currentModels, err := m.load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to read model list"})
		return
	}
	idx := -1
	for i, mm := range currentModels {
		if mm.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "Model not found"})
		return
	}
	currentModels = append(currentModels[:idx], currentModels[idx+1:]...)
	if err := m.save(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted successfully"})
}

// TestModelConnection sends a one-word prompt through the configured provider.
func (m *ModelService) TestModelConnection(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid parameters: " + err.Error()})
		return
	}
	req.Normalize()
	if req.Provider == "" {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Provider required"})
		return
	}
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Unknown provider"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if req.HasTask(models.TaskTypeTextEmbedding) && !req.HasTask(models.TaskTypeChat) {
		embed, err := m.CreateEmbeddingFunc(ctx, &req)
		if err == nil {
			_, err = embed(ctx, "connection test")
		}
		m.respondConnection(c, err)
		return
	}

	chatModel, err := m.CreateChatModel(ctx, &req)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Model init failed: " + err.Error()})
		return
	}
	_, err = chatModel.Generate(ctx, []*schema.Message{{Role: schema.User, Content: "Hi"}})
	m.respondConnection(c, err)
}

func (m *ModelService) respondConnection(c *gin.Context, err error) {
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Connection failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "success": true, "message": "Connection successful"})
}

// CreateChatModel creates an eino chat model from config
func (m *ModelService) CreateChatModel(ctx context.Context, config *models.ModelConfig) (einoModel.ToolCallingChatModel, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case "openai", "custom":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case "ark":
		timeout := time.Second * 600
		retries := 3
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:    config.BaseUrl,
			Region:     config.ExtraString("region"),
			Timeout:    &timeout,
			RetryTimes: &retries,
			APIKey:     config.ApiKey,
			Model:      config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ark model: %w", err)
		}
		return chatModel, nil

	case "deepseek":
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case "anthropic":
		var baseURL *string
		if config.BaseUrl != "" {
			baseURL = &config.BaseUrl
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    config.ApiKey,
			Model:     config.Model,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case "ollama":
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: config.BaseUrl,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	case "google":
		genaiClient, err := synthesis.NewGenaiClient(ctx, config.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	case "qianfan":
		qianfanConfig := qianfan.GetQianfanSingletonConfig()
		qianfanConfig.BaseURL = config.BaseUrl
		qianfanConfig.BearerToken = config.ApiKey
		chatModel, err := qianfan.NewChatModel(ctx, &qianfan.ChatModelConfig{
			Model: config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qianfan model: %w", err)
		}
		return chatModel, nil

	case "qwen":
		chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qwen model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
	}
}

// GetModelConfig get specified model config (match by name or model field).
// When models.json has no match, a Google key from the environment yields a
// config for modelName. It returns nil, nil when nothing matches.
func (m *ModelService) GetModelConfig(modelName string) (*models.ModelConfig, error) {
	currentModels, err := m.load()
	if err != nil {
		return nil, err
	}
	for _, mm := range currentModels {
		if mm.Name == modelName || mm.Model == modelName {
			m.applyPresets(mm)
			mm.Normalize()
			return mm, nil
		}
	}
	if key := envGeminiKey(); key != "" && modelName != "" {
		return &models.ModelConfig{
			ID:        "env-" + modelName,
			Provider:  "google",
			Domain:    models.DomainMultimodal,
			TaskTypes: []string{models.TaskTypeChat, models.TaskTypeImageUnderstanding, models.TaskTypeImageGeneration},
			Model:     modelName,
			Name:      modelName,
			ApiKey:    key,
			Extra:     map[string]interface{}{},
		}, nil
	}
	return nil, nil // not found
}

func envGeminiKey() string {
	for _, name := range geminiKeyEnv {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// NewCompleter builds the synthesis client collaborators for the named chat
// and image models. Google models talk to Gemini directly so that structured
// JSON and image edits are available; every other provider goes through eino.
// The returned editor is nil when no image model is configured.
func (m *ModelService) NewCompleter(ctx context.Context, chatModel, imageModel string) (synthesis.Completer, synthesis.ImageEditor, error) {
	chatCfg, err := m.GetModelConfig(chatModel)
	if err != nil {
		return nil, nil, err
	}
	if chatCfg == nil {
		return nil, nil, fmt.Errorf("chat model %q is not configured", chatModel)
	}
	imageCfg, err := m.GetModelConfig(imageModel)
	if err != nil {
		return nil, nil, err
	}

	var completer synthesis.Completer
	if chatCfg.Provider == "google" {
		client, err := synthesis.NewGenaiClient(ctx, chatCfg.ApiKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		completer = synthesis.NewGenaiCompleter(client, chatCfg.Model, "")
	} else {
		cm, err := m.CreateChatModel(ctx, chatCfg)
		if err != nil {
			return nil, nil, err
		}
		completer = synthesis.NewEinoCompleter(cm)
	}

	var editor synthesis.ImageEditor
	switch {
	case imageCfg == nil:
		m.logger.Warn("No image model configured, remixes are disabled", "model", imageModel)
	case imageCfg.Provider == "google":
		client, err := synthesis.NewGenaiClient(ctx, imageCfg.ApiKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		editor = synthesis.NewGenaiCompleter(client, chatCfg.Model, imageCfg.Model)
	default:
		cm, err := m.CreateChatModel(ctx, imageCfg)
		if err != nil {
			return nil, nil, err
		}
		editor = synthesis.NewEinoCompleter(cm)
	}

	m.logger.Info("Completion models ready", "chat", chatCfg.Model, "chatProvider", chatCfg.Provider,
		"remix", editor != nil)
	return completer, editor, nil
}

// GetProviderApiKeys returns saved API keys and base URLs for a specific provider
func (m *ModelService) GetProviderApiKeys(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Provider parameter required"})
		return
	}

	currentModels, err := m.load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to read model list"})
		return
	}

	type KeyInfo struct {
		Value   string `json:"value"`
		Display string `json:"display"`
	}
	apiKeys := []KeyInfo{}
	baseUrls := []string{}
	seenKey := make(map[string]struct{})
	seenURL := make(map[string]struct{})
	for _, mm := range currentModels {
		if mm.Provider != provider {
			continue
		}
		if _, ok := seenKey[mm.ApiKey]; mm.ApiKey != "" && !ok {
			seenKey[mm.ApiKey] = struct{}{}
			apiKeys = append(apiKeys, KeyInfo{Value: mm.ApiKey, Display: utils.MaskSensitiveString(mm.ApiKey)})
		}
		if _, ok := seenURL[mm.BaseUrl]; mm.BaseUrl != "" && !ok {
			seenURL[mm.BaseUrl] = struct{}{}
			baseUrls = append(baseUrls, mm.BaseUrl)
		}
	}

	c.JSON(http.StatusOK, models.Response{Code: 200, Data: gin.H{
		"api_keys":  apiKeys,
		"base_urls": baseUrls,
	}})
}

// GetProviderPresets lists the known providers and their suggested models.
func (m *ModelService) GetProviderPresets(c *gin.Context) {
	presets, err := models.LoadPresets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to load provider presets"})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Data: presets})
}
