package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration values.
type Config struct {
	Port     string
	DataDir  string
	Media    MediaConfig
	Vision   VisionConfig
	Compose  ComposeConfig
	Upsell   UpsellConfig
	RemoveBG RemoveBGConfig
}

// MediaConfig describes the optional S3-compatible publisher used to hand
// the generation API public image URLs instead of inline data.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// VisionConfig configures the placement analyzer.
type VisionConfig struct {
	Provider     string // "openai" or "gemini"
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// ComposeConfig configures the composite image generation backend.
type ComposeConfig struct {
	Backend      string // "gemini", "imagen" or "kie"
	GeminiAPIKey string
	GeminiModel  string
	Imagen       ImagenConfig
	KieAPIKey    string
	Timeout      time.Duration
}

// ImagenConfig describes the Vertex AI Imagen connection.
type ImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	APIKey             string
	ServiceAccountJSON string
}

// UpsellConfig configures the recommendation LLM.
type UpsellConfig struct {
	Provider     string // "openai" or "gemini"
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
}

// RemoveBGConfig configures the background removal proxy.
type RemoveBGConfig struct {
	APIKey string
}

// FromEnv loads configuration from environment variables and applies defaults.
// A .env file in the working directory is honored when present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	cfg := Config{
		Port:    getenv("APP_PORT", "8080"),
		DataDir: getenv("DATA_DIR", "data"),
		Media: MediaConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          os.Getenv("S3_REGION"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			PublicURL:       os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:       strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			ForcePathStyle:  getenvBool("S3_FORCE_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Vision: VisionConfig{
			Provider:     getenv("VISION_PROVIDER", "openai"),
			OpenAIAPIKey: openAIKey,
			OpenAIModel:  getenv("VISION_OPENAI_MODEL", "gpt-4o"),
			GeminiAPIKey: geminiKey,
			GeminiModel:  getenv("VISION_GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:      getenvDuration("VISION_TIMEOUT", 60*time.Second),
		},
		Compose: ComposeConfig{
			Backend:      getenv("COMPOSE_BACKEND", "gemini"),
			GeminiAPIKey: geminiKey,
			GeminiModel:  getenv("COMPOSE_GEMINI_MODEL", "gemini-2.5-flash-image"),
			Imagen: ImagenConfig{
				ProjectID:          os.Getenv("IMAGEN_PROJECT_ID"),
				Location:           getenv("IMAGEN_LOCATION", "us-central1"),
				Model:              getenv("IMAGEN_MODEL", "imagegeneration@006"),
				APIKey:             os.Getenv("IMAGEN_API_KEY"),
				ServiceAccountJSON: os.Getenv("IMAGEN_SERVICE_ACCOUNT_JSON"),
			},
			KieAPIKey: os.Getenv("KIE_AI_API_KEY"),
			Timeout:   getenvDuration("COMPOSE_TIMEOUT", 120*time.Second),
		},
		Upsell: UpsellConfig{
			Provider:     getenv("UPSELL_PROVIDER", "openai"),
			OpenAIAPIKey: openAIKey,
			OpenAIModel:  getenv("UPSELL_OPENAI_MODEL", "gpt-4-turbo-preview"),
			GeminiAPIKey: geminiKey,
			GeminiModel:  getenv("UPSELL_GEMINI_MODEL", "gemini-2.0-flash"),
		},
		RemoveBG: RemoveBGConfig{
			APIKey: os.Getenv("REMOVEBG_API_KEY"),
		},
	}

	if cfg.Port == "" {
		log.Fatal("APP_PORT cannot be empty")
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}

	return parsed
}
