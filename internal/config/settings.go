package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings is the user's persisted configuration. It is loaded once at
// startup and passed by reference to whatever needs it.
type Settings struct {
	LocalMode      bool   `json:"local_mode"`
	Provider       string `json:"provider" validate:"oneof=openai gemini"`
	Model          string `json:"model" validate:"required"`
	EmbeddingModel string `json:"embedding_model" validate:"required"`

	LocalSources  []string `json:"local_sources"`
	RemoteSources []string `json:"remote_sources"`

	SystemPrompts      map[string]string `json:"system_prompts"`
	ActiveSystemPrompt string            `json:"active_system_prompt"`

	OpenAIKey string `json:"openai_key,omitempty"`
	GeminiKey string `json:"gemini_key,omitempty"`
	RemoteURL string `json:"remote_url" validate:"omitempty,url"`
	UserID    string `json:"user_id,omitempty"`
	APIToken  string `json:"api_token,omitempty"`
	DataDir   string `json:"data_dir,omitempty"`

	TopK                 int `json:"top_k" validate:"gte=1,lte=100"`
	TopN                 int `json:"top_n" validate:"gte=1,lte=100"`
	MaxChunkTokens       int `json:"max_chunk_tokens" validate:"gte=16"`
	TransientTokenBudget int `json:"transient_token_budget" validate:"gte=0"`

	path string
	// file values shadowed by environment overrides, restored on save
	shadowed map[string]string
}

var validate = validator.New()

func DefaultSettings() *Settings {
	return &Settings{
		Provider:             DefaultProvider,
		Model:                DefaultChatModel,
		EmbeddingModel:       OpenAIEmbeddingModel,
		LocalSources:         []string{},
		RemoteSources:        []string{},
		SystemPrompts:        map[string]string{DefaultPromptName: DefaultSystemPrompt},
		ActiveSystemPrompt:   DefaultPromptName,
		RemoteURL:            DefaultRemoteURL,
		TopK:                 DefaultTopK,
		TopN:                 DefaultTopN,
		MaxChunkTokens:       DefaultMaxChunkTokens,
		TransientTokenBudget: DefaultTransientTokenBudget,
	}
}

// DefaultSettingsPath is ~/.mirage.json.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return SettingsFileName
	}
	return filepath.Join(home, SettingsFileName)
}

// LoadEnvFile loads a .env file from the working directory if present.
// Variables already set in the environment win.
func LoadEnvFile() error {
	if _, err := os.Stat(EnvFileName); err != nil {
		return nil
	}
	return godotenv.Load(EnvFileName)
}

// LoadSettings reads the settings file at path, filling in defaults for
// anything missing, then applies environment overrides. A missing file is
// not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	s.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	default:
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	s.applyDefaults()
	s.applyEnv()
	return s, nil
}

func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.Provider == "" {
		s.Provider = d.Provider
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.EmbeddingModel == "" {
		if s.Provider == "gemini" {
			s.EmbeddingModel = GoogleEmbeddingModel
		} else {
			s.EmbeddingModel = d.EmbeddingModel
		}
	}
	if s.SystemPrompts == nil {
		s.SystemPrompts = map[string]string{}
	}
	if _, ok := s.SystemPrompts[DefaultPromptName]; !ok {
		s.SystemPrompts[DefaultPromptName] = DefaultSystemPrompt
	}
	if s.ActiveSystemPrompt == "" {
		s.ActiveSystemPrompt = DefaultPromptName
	}
	if s.RemoteURL == "" {
		s.RemoteURL = d.RemoteURL
	}
	if s.TopK <= 0 {
		s.TopK = d.TopK
	}
	if s.TopN <= 0 {
		s.TopN = d.TopN
	}
	if s.MaxChunkTokens <= 0 {
		s.MaxChunkTokens = d.MaxChunkTokens
	}
	if s.TransientTokenBudget <= 0 {
		s.TransientTokenBudget = d.TransientTokenBudget
	}
	if s.LocalSources == nil {
		s.LocalSources = []string{}
	}
	if s.RemoteSources == nil {
		s.RemoteSources = []string{}
	}
}

func (s *Settings) applyEnv() {
	s.shadowed = map[string]string{}
	override := func(key, env string, field *string) {
		if v := os.Getenv(env); v != "" {
			s.shadowed[key] = *field
			*field = v
		}
	}
	override("openai_key", "OPENAI_API_KEY", &s.OpenAIKey)
	override("gemini_key", "GEMINI_API_KEY", &s.GeminiKey)
	override("remote_url", "MIRAGE_REMOTE_URL", &s.RemoteURL)
	override("user_id", "MIRAGE_USER_ID", &s.UserID)
	override("api_token", "MIRAGE_API_TOKEN", &s.APIToken)
	override("data_dir", "MIRAGE_DATA_DIR", &s.DataDir)
	if v, err := strconv.ParseBool(os.Getenv("MIRAGE_LOCAL_MODE")); err == nil {
		s.shadowed["local_mode"] = strconv.FormatBool(s.LocalMode)
		s.LocalMode = v
	}
}

// persisted returns the settings as they should be written to disk, with
// environment overrides swapped back for the file's own values.
func (s *Settings) persisted() Settings {
	c := *s
	for key, v := range s.shadowed {
		switch key {
		case "openai_key":
			c.OpenAIKey = v
		case "gemini_key":
			c.GeminiKey = v
		case "remote_url":
			c.RemoteURL = v
		case "user_id":
			c.UserID = v
		case "api_token":
			c.APIToken = v
		case "data_dir":
			c.DataDir = v
		case "local_mode":
			c.LocalMode = v == "true"
		}
	}
	return c
}

func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if _, ok := s.SystemPrompts[s.ActiveSystemPrompt]; !ok {
		return fmt.Errorf("invalid settings: unknown system prompt %q", s.ActiveSystemPrompt)
	}
	return nil
}

func (s *Settings) Path() string {
	return s.path
}

// DataPath returns the directory holding the local vector store and logs.
func (s *Settings) DataPath() string {
	if s.DataDir != "" {
		return s.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDirName
	}
	return filepath.Join(home, DataDirName)
}

// SystemPrompt returns the active system prompt text.
func (s *Settings) SystemPrompt() string {
	if p, ok := s.SystemPrompts[s.ActiveSystemPrompt]; ok {
		return p
	}
	return DefaultSystemPrompt
}

// PromptNames returns the configured prompt names in sorted order.
func (s *Settings) PromptNames() []string {
	names := make([]string, 0, len(s.SystemPrompts))
	for n := range s.SystemPrompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DeletePrompt removes a saved system prompt. Deleting the active prompt
// makes the default active again; the default itself cannot be deleted.
func (s *Settings) DeletePrompt(name string) error {
	if name == DefaultPromptName {
		return fmt.Errorf("the %q system prompt cannot be deleted", DefaultPromptName)
	}
	if _, ok := s.SystemPrompts[name]; !ok {
		return fmt.Errorf("unknown system prompt %q", name)
	}
	delete(s.SystemPrompts, name)
	if s.ActiveSystemPrompt == name {
		s.ActiveSystemPrompt = DefaultPromptName
	}
	return nil
}

// Save writes the settings back to the file they were loaded from.
// The write goes through a temp file so a crash never leaves half a file.
func (s *Settings) Save() error {
	if s.path == "" {
		return errors.New("settings have no backing file")
	}
	return s.SaveTo(s.path)
}

func (s *Settings) SaveTo(path string) error {
	out := s.persisted()
	data, err := json.MarshalIndent(&out, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mirage-*.json")
	if err != nil {
		return fmt.Errorf("creating temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	s.path = path
	return nil
}

// Set updates a single user-editable key from its string form.
func (s *Settings) Set(key, value string) error {
	delete(s.shadowed, key)
	switch key {
	case "local_mode":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("local_mode expects true or false: %w", err)
		}
		s.LocalMode = b
	case "provider":
		s.Provider = value
	case "model":
		s.Model = value
	case "embedding_model":
		s.EmbeddingModel = value
	case "remote_url":
		s.RemoteURL = value
	case "user_id":
		s.UserID = value
	case "api_token":
		s.APIToken = value
	case "openai_key":
		s.OpenAIKey = value
	case "gemini_key":
		s.GeminiKey = value
	case "data_dir":
		s.DataDir = value
	case "active_system_prompt":
		s.ActiveSystemPrompt = value
	case "top_k", "top_n", "max_chunk_tokens", "transient_token_budget":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		switch key {
		case "top_k":
			s.TopK = n
		case "top_n":
			s.TopN = n
		case "max_chunk_tokens":
			s.MaxChunkTokens = n
		default:
			s.TransientTokenBudget = n
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return s.Validate()
}

// Redacted returns a copy safe to print.
func (s *Settings) Redacted() Settings {
	c := *s
	c.OpenAIKey = redact(c.OpenAIKey)
	c.GeminiKey = redact(c.GeminiKey)
	c.APIToken = redact(c.APIToken)
	return c
}

func redact(v string) string {
	if len(v) <= 4 {
		if v == "" {
			return ""
		}
		return "****"
	}
	return "****" + v[len(v)-4:]
}
