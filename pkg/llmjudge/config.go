package llmjudge

import (
	"os"
)

const (
	DefaultBaseUrlKey   = "OPENAI_BASE_URL"
	DefaultApiKeyKey    = "OPENAI_API_KEY"
	DefaultModelNameKey = "OPENAI_MODEL"

	DefaultModel = "gpt-4o-mini"
)

// LLMJudgeConfig locates the judge's credentials. Values are read from the environment
// variables it names, never stored in manifests.
type LLMJudgeConfig struct {
	Env *LLMJudgeEnvConfig `json:"env,omitempty"`

	// Model overrides whatever the environment says.
	Model string `json:"model,omitempty"`
}

type LLMJudgeEnvConfig struct {
	BaseUrlKey   string `json:"baseUrlKey"`
	ApiKeyKey    string `json:"apiKeyKey"`
	ModelNameKey string `json:"modelNameKey"`
}

func (cfg *LLMJudgeConfig) env() LLMJudgeEnvConfig {
	env := LLMJudgeEnvConfig{
		BaseUrlKey:   DefaultBaseUrlKey,
		ApiKeyKey:    DefaultApiKeyKey,
		ModelNameKey: DefaultModelNameKey,
	}
	if cfg == nil || cfg.Env == nil {
		return env
	}

	if cfg.Env.BaseUrlKey != "" {
		env.BaseUrlKey = cfg.Env.BaseUrlKey
	}
	if cfg.Env.ApiKeyKey != "" {
		env.ApiKeyKey = cfg.Env.ApiKeyKey
	}
	if cfg.Env.ModelNameKey != "" {
		env.ModelNameKey = cfg.Env.ModelNameKey
	}

	return env
}

func (cfg *LLMJudgeConfig) BaseUrl() string {
	return os.Getenv(cfg.env().BaseUrlKey)
}

func (cfg *LLMJudgeConfig) ApiKey() string {
	return os.Getenv(cfg.env().ApiKeyKey)
}

func (cfg *LLMJudgeConfig) ModelName() string {
	if cfg != nil && cfg.Model != "" {
		return cfg.Model
	}

	if model := os.Getenv(cfg.env().ModelNameKey); model != "" {
		return model
	}

	return DefaultModel
}
