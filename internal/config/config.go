package config

import (
	"log"
	"os"
	"strconv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port string

	// LLM backend: "openai", "vertex" or "mock".
	LLMProvider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GCPProjectID string
	GCPLocation  string
	VertexModel  string

	// Storage backend: "memory", "sqlite" or "firestore".
	StorageBackend string
	SQLitePath     string

	// OCR collaborator.
	OCRBaseURL string
	// Extractions with a reported confidence below this are classified as
	// low-confidence. Zero-confidence results fall back to boilerplate
	// phrase matching.
	OCRMinConfidence float64
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Load reads all env vars and builds the config.
func Load() *Config {
	modeStr := getEnv("CONSULMED_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	defaultLLM := "mock"
	if mode == ModeGCP {
		defaultLLM = "openai"
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("PORT", "8080"),

		LLMProvider: getEnv("CONSULMED_LLM_PROVIDER", defaultLLM),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("CONSULMED_OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("CONSULMED_OPENAI_BASE_URL", ""),

		GCPProjectID: getEnv("CONSULMED_GCP_PROJECT", ""),
		GCPLocation:  getEnv("CONSULMED_GCP_LOCATION", "us-central1"),
		VertexModel:  getEnv("CONSULMED_VERTEX_MODEL", "gemini-2.5-flash"),

		StorageBackend: getEnv("CONSULMED_STORAGE_BACKEND", "memory"),
		SQLitePath:     getEnv("CONSULMED_SQLITE_PATH", "consulmed.db"),

		OCRBaseURL:       getEnv("CONSULMED_OCR_BASE_URL", ""),
		OCRMinConfidence: getFloatEnv("CONSULMED_OCR_MIN_CONFIDENCE", 0.30),
	}

	// Minimal validation in GCP mode.
	if cfg.Mode == ModeGCP && cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		log.Fatal("CONSULMED_GCP_PROJECT must be set for the firestore backend")
	}
	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey == "" && cfg.Mode == ModeGCP {
		log.Fatal("OPENAI_API_KEY must be set for the openai provider")
	}

	return cfg
}
