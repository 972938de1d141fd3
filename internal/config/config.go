// Package config reads the chalkd process configuration from the
// environment. Provider keys keep their conventional names; everything
// else is prefixed with CHALK_.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr string

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	Model          string
	EmbeddingModel string

	DeepgramAPIKey string
	Voice          string

	DataDir string

	SynthesisConcurrency int
	HistoryLimit         int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load reads all env vars and builds the config.
func Load() *Config {
	return &Config{
		Addr: getEnv("CHALK_ADDR", ":8080"),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  getEnv("CHALK_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:          getEnv("CHALK_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("CHALK_EMBEDDING_MODEL", "text-embedding-3-small"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		Voice:          os.Getenv("CHALK_VOICE"),

		DataDir: getEnv("CHALK_DATA_DIR", "data"),

		SynthesisConcurrency: getIntEnv("CHALK_SYNTHESIS_CONCURRENCY", 3),
		HistoryLimit:         getIntEnv("CHALK_HISTORY_LIMIT", 20),
	}
}
