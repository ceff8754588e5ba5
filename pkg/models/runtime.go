package models

// RuntimeInfo describes the backend runtime settings that the frontend may need.
type RuntimeInfo struct {
	HTTPBaseURL    string `json:"http_base_url"`
	WSBaseURL      string `json:"ws_base_url"`
	Port           int    `json:"port"`
	StorageBackend string `json:"storage_backend"`
	ChatModel      string `json:"chat_model"`
	ImageModel     string `json:"image_model"`
}
