package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables, optionally overlaid
// by a local .env file. Mirrors the teacher's env-first, YAML-free loader.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{Session: Defaults()}

	cfg.LLMClient.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	cfg.LLMClient.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLMClient.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.LLMClient.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))

	cfg.LLMClient.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLMClient.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	cfg.LLMClient.OpenAI.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE_URL"))

	cfg.LLMClient.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.LLMClient.Google.Model = strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL"))
	cfg.LLMClient.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	cfg.LLMClient.Google.Timeout = parseIntDefault(os.Getenv("GOOGLE_LLM_TIMEOUT_SECONDS"), 30)

	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBED_MODEL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.APIHeader = firstNonEmpty(os.Getenv("EMBED_API_HEADER"), "Authorization")
	cfg.Embedding.Path = firstNonEmpty(os.Getenv("EMBED_PATH"), "/v1/embeddings")
	cfg.Embedding.Timeout = parseIntDefault(os.Getenv("EMBED_TIMEOUT"), 30)

	cfg.Database.DSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN"))

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	cfg.Redis.DB = parseIntDefault(os.Getenv("REDIS_DB"), 0)
	cfg.Redis.Enabled = cfg.Redis.Addr != ""

	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "dialectic")
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogPayload = envBool(os.Getenv("LOG_PAYLOADS"))

	if v := strings.TrimSpace(os.Getenv("MAX_CYCLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxCycles = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CYCLE_MODE")); v != "" {
		cfg.Session.CycleMode = v
	}
	if v := strings.TrimSpace(os.Getenv("CYCLE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.CycleTimeoutMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MODEL_POOL")); v != "" {
		cfg.Session.ModelPool = parseCommaSeparatedList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DECAY_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.DecayRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIMILARITY_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.SimilarityThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARIZER_DEBOUNCE_CYCLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.SummarizerDebounceCycles = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PERTURBATION_PROBABILITY")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.PerturbationProbability = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("COST_LIMIT_USD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.CostLimitUSD = &f
		}
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseIntDefault(v string, def int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(v string) bool {
	v = strings.TrimSpace(v)
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func parseCommaSeparatedList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
