package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	"github.com/zhouzirui/z-haven/backend/pkg/gemini"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Triage    TriageConfig
	Store     StoreConfig
	Telephony TelephonyConfig
	Events    EventsConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	triage, err := loadTriageConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	telephony, err := loadTelephonyConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Triage:    triage,
		Store:     store,
		Telephony: telephony,
		Events:    EventsConfig{NATSURL: strings.TrimSpace(os.Getenv("NATS_URL"))},
		Log:       logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AI providers.
const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderGemini {
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	}
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	if c.Provider == ProviderGemini {
		return gemini.NewChatModel(gemini.Config{
			APIKey:      c.GeminiAPIKey,
			Model:       c.GeminiModel,
			BaseURL:     c.GeminiURL,
			Temperature: temperature,
			MaxTokens:   c.MaxTokens,
		})
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderGemini {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:     provider,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiURL:    getEnvOrDefault("GEMINI_BASE_URL", gemini.DefaultBaseURL),
	}, nil
}

// TriageConfig 描述分诊流程的行为参数。
type TriageConfig struct {
	EmergencyNumber   string
	ResponderRole     string
	ClassifyTimeout   time.Duration
	LookupTimeout     time.Duration
	CompletionTimeout time.Duration
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
	TranscriptLimit   int
	ClassifyCacheTTL  time.Duration
	LexiconEnabled    bool
	DefaultLocale     locale.Locale
	LocaleAutodetect  bool
	SessionIdleTTL    time.Duration
}

func loadTriageConfig() (TriageConfig, error) {
	cfg := TriageConfig{
		EmergencyNumber: getEnvOrDefault("TRIAGE_EMERGENCY_NUMBER", "14416"),
		ResponderRole:   getEnvOrDefault("TRIAGE_RESPONDER_ROLE", "psychiatrist"),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"TRIAGE_CLASSIFY_TIMEOUT", 15 * time.Second, &cfg.ClassifyTimeout},
		{"TRIAGE_LOOKUP_TIMEOUT", 5 * time.Second, &cfg.LookupTimeout},
		{"TRIAGE_COMPLETION_TIMEOUT", 30 * time.Second, &cfg.CompletionTimeout},
		{"TRIAGE_WRITE_TIMEOUT", 5 * time.Second, &cfg.WriteTimeout},
		{"TRIAGE_DIAL_TIMEOUT", 5 * time.Second, &cfg.DialTimeout},
		{"TRIAGE_CLASSIFY_CACHE_TTL", 30 * time.Minute, &cfg.ClassifyCacheTTL},
		{"TRIAGE_SESSION_IDLE_TTL", 30 * time.Minute, &cfg.SessionIdleTTL},
	}
	for _, d := range durations {
		val, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return TriageConfig{}, err
		}
		*d.dest = val
	}

	limit := 50
	if override, err := parseOptionalIntEnv("TRIAGE_TRANSCRIPT_LIMIT"); err != nil {
		return TriageConfig{}, err
	} else if override != nil {
		// 0 表示不截断。
		if *override < 0 {
			return TriageConfig{}, fmt.Errorf("invalid TRIAGE_TRANSCRIPT_LIMIT value %d", *override)
		}
		limit = *override
	}
	cfg.TranscriptLimit = limit

	lexicon, err := parseBoolEnv("TRIAGE_LEXICON_ENABLED", true)
	if err != nil {
		return TriageConfig{}, err
	}
	cfg.LexiconEnabled = lexicon

	autodetect, err := parseBoolEnv("TRIAGE_LOCALE_AUTODETECT", false)
	if err != nil {
		return TriageConfig{}, err
	}
	cfg.LocaleAutodetect = autodetect

	loc, err := locale.Parse(getEnvOrDefault("TRIAGE_DEFAULT_LOCALE", string(locale.Primary)))
	if err != nil {
		return TriageConfig{}, fmt.Errorf("invalid TRIAGE_DEFAULT_LOCALE: %w", err)
	}
	cfg.DefaultLocale = loc

	return cfg, nil
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// StoreConfig 描述持久化后端。
type StoreConfig struct {
	Driver         string
	SQLitePath     string
	BadgerPath     string
	RespondersFile string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverMemory))
	switch driver {
	case DriverMemory, DriverSQLite, DriverBadger:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	return StoreConfig{
		Driver:         driver,
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "data/z-haven.db"),
		BadgerPath:     getEnvOrDefault("BADGER_PATH", "data/badger"),
		RespondersFile: strings.TrimSpace(os.Getenv("RESPONDERS_FILE")),
	}, nil
}

// TelephonyConfig 描述拨号能力。WebhookURL 为空时只记录日志。
type TelephonyConfig struct {
	WebhookURL string
}

func loadTelephonyConfig() (TelephonyConfig, error) {
	url := strings.TrimSpace(os.Getenv("TELEPHONY_WEBHOOK_URL"))
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return TelephonyConfig{}, fmt.Errorf("invalid TELEPHONY_WEBHOOK_URL value %q", url)
	}
	return TelephonyConfig{WebhookURL: url}, nil
}

// EventsConfig 描述升级事件的消息总线。
type EventsConfig struct {
	NATSURL string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level      string
	File       string
	Production bool
}

func loadLogConfig() (LogConfig, error) {
	production, err := parseBoolEnv("LOG_PRODUCTION", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:      strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		File:       strings.TrimSpace(os.Getenv("LOG_FILE")),
		Production: production,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
