package config

import (
	"os"
	"strconv"
)

// Server side values that may come from the environment.

func AuthToken() string {
	return os.Getenv("MIRAGE_API_TOKEN")
}

// NoAuthBypass disables bearer checks, only ever for local development.
func NoAuthBypass() bool {
	v, _ := strconv.ParseBool(os.Getenv("MIRAGE_NO_AUTH"))
	return v
}

// LogJSON switches the server logs to JSON outside of production builds.
func LogJSON() bool {
	v, _ := strconv.ParseBool(os.Getenv("MIRAGE_LOG_JSON"))
	return IS_PROD || v
}

func QdrantAddr() (string, int) {
	host := os.Getenv("QDRANT_HOST")
	port, err := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	if host == "" || err != nil {
		return QdrantHost, QdrantGrpcPort
	}
	return host, port
}

func RedisAddress() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return RedisAddr
}

func ServerOpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func ServerGeminiKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// ServerSettings describes the models the hosted API uses, from
// MIRAGE_PROVIDER, MIRAGE_MODEL and MIRAGE_EMBEDDING_MODEL.
func ServerSettings() (*Settings, error) {
	s := DefaultSettings()
	if p := os.Getenv("MIRAGE_PROVIDER"); p != "" {
		s.Provider = p
	}
	if s.Provider == "gemini" {
		s.Model = GeminiModelName
		s.EmbeddingModel = GoogleEmbeddingModel
	}
	if m := os.Getenv("MIRAGE_MODEL"); m != "" {
		s.Model = m
	}
	if m := os.Getenv("MIRAGE_EMBEDDING_MODEL"); m != "" {
		s.EmbeddingModel = m
	}
	s.OpenAIKey = ServerOpenAIKey()
	s.GeminiKey = ServerGeminiKey()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
