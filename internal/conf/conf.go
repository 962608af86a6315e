package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/orderrelay/feishu-order-relay/internal/biz"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	Feishu     FeishuConfig
	OpenAI     OpenAIConfig
	Store      StoreConfig
	Filter     FilterConfig
	Classifier ClassifierConfig
	Delivery   DeliveryConfig
	Admin      AdminConfig
	API        APIConfig

	// Prompts configuration (loaded from YAML)
	Prompts     *PromptsConfig
	PromptsPath string

	Location *time.Location

	LogLevel string
	Env      string

	// first unparsable value, reported by Validate
	parseErr *ConfigError
}

// FeishuConfig contains Feishu app credentials
type FeishuConfig struct {
	AppID             string
	AppSecret         string
	VerificationToken string // checked on card callbacks when set
}

// OpenAIConfig contains classifier service configuration
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DBPath             string
	RedisURL           string
	OrderRetentionDays int
	RulesRefresh       time.Duration
}

// FilterConfig contains pre-filter and guard limits
type FilterConfig struct {
	MinTextLength   int
	MaxTextLength   int
	MinContentRunes int
	MaxOrdersPerDay int
	Cooldown        time.Duration
	Timezone        string
}

// ClassifierConfig contains classifier thresholds
type ClassifierConfig struct {
	Threshold      float64
	Timeout        time.Duration
	ExtractOnForce bool
}

// DeliveryConfig contains notice delivery configuration
type DeliveryConfig struct {
	SendTimeout     time.Duration
	DialURLTemplate string
}

// AdminConfig contains operator settings
type AdminConfig struct {
	ChatID            string
	OpenIDs           []string
	ImportJoinedChats bool
	MCPOperator       string // recorded as owner of MCP admin writes
}

// APIConfig contains the admin HTTP API configuration
type APIConfig struct {
	Addr        string
	JWTSecret   string
	CORSOrigins []string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	c := &Config{}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".order-relay", "relay.db")
	}

	c.Feishu = FeishuConfig{
		AppID:             os.Getenv("FEISHU_APP_ID"),
		AppSecret:         os.Getenv("FEISHU_APP_SECRET"),
		VerificationToken: os.Getenv("FEISHU_VERIFICATION_TOKEN"),
	}
	c.OpenAI = OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	c.Store = StoreConfig{
		DBPath:             dbPath,
		RedisURL:           os.Getenv("REDIS_URL"),
		OrderRetentionDays: c.envInt("ORDER_RETENTION_DAYS", 90),
		RulesRefresh:       time.Duration(c.envInt("RULES_REFRESH_SECONDS", 30)) * time.Second,
	}
	c.Filter = FilterConfig{
		MinTextLength:   c.envInt("MIN_TEXT_LENGTH", 10),
		MaxTextLength:   c.envInt("MAX_TEXT_LENGTH", 60),
		MinContentRunes: c.envInt("MIN_CONTENT_RUNES", 5),
		MaxOrdersPerDay: c.envInt("MAX_ORDERS_PER_DAY", 3),
		Cooldown:        time.Duration(c.envInt("COOLDOWN_SECONDS", 30)) * time.Second,
		Timezone:        envString("TIMEZONE", "Asia/Tashkent"),
	}
	c.Classifier = ClassifierConfig{
		Threshold:      c.envFloat("CONFIDENCE_THRESHOLD", 0.7),
		Timeout:        c.envDuration("CLASSIFY_TIMEOUT", 15*time.Second),
		ExtractOnForce: c.envBool("EXTRACT_ON_FORCE", true),
	}
	c.Delivery = DeliveryConfig{
		SendTimeout:     c.envDuration("SEND_TIMEOUT", 10*time.Second),
		DialURLTemplate: envString("DIAL_URL_TEMPLATE", "https://onmap.uz/tel/%s"),
	}
	c.Admin = AdminConfig{
		ChatID:            os.Getenv("ADMIN_CHAT_ID"),
		OpenIDs:           splitList(os.Getenv("ADMIN_OPEN_IDS")),
		ImportJoinedChats: c.envBool("IMPORT_JOINED_CHATS", false),
		MCPOperator:       envString("MCP_OPERATOR", "mcp"),
	}
	c.API = APIConfig{
		Addr:        envString("API_ADDR", "127.0.0.1:9876"),
		JWTSecret:   os.Getenv("API_JWT_SECRET"),
		CORSOrigins: splitList(os.Getenv("API_CORS_ORIGINS")),
	}
	c.LogLevel = envString("LOG_LEVEL", "info")
	c.Env = envString("ENV", "development")

	c.PromptsPath = os.Getenv("PROMPTS_CONFIG_PATH")
	prompts, loaded, err := LoadPromptsConfig(c.PromptsPath)
	if err != nil {
		c.setParseErr("PROMPTS_CONFIG_PATH", err.Error())
		prompts = DefaultPromptsConfig()
	}
	c.Prompts = prompts
	if loaded != "" {
		c.PromptsPath = loaded
	}

	loc, err := time.LoadLocation(c.Filter.Timezone)
	if err != nil {
		c.setParseErr("TIMEZONE", err.Error())
		loc = time.UTC
	}
	c.Location = loc

	return c
}

// Validate validates the configuration for the listener process
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if c.Admin.ChatID != "" && !strings.HasPrefix(c.Admin.ChatID, "oc_") {
		return &ConfigError{Field: "ADMIN_CHAT_ID", Message: "must be a chat id (oc_...)"}
	}
	if len(c.Admin.OpenIDs) > 0 && c.Feishu.VerificationToken == "" {
		return &ConfigError{Field: "FEISHU_VERIFICATION_TOKEN", Message: "required when ADMIN_OPEN_IDS is set"}
	}
	if !strings.Contains(c.Delivery.DialURLTemplate, "%s") {
		return &ConfigError{Field: "DIAL_URL_TEMPLATE", Message: "must contain %s"}
	}
	return nil
}

// ValidateStore validates what the store-only processes need
func (c *Config) ValidateStore() error {
	if c.parseErr != nil {
		return c.parseErr
	}
	f := c.Filter
	if f.MinTextLength < 0 || f.MaxTextLength < f.MinTextLength {
		return &ConfigError{Field: "MIN_TEXT_LENGTH/MAX_TEXT_LENGTH", Message: "need 0 <= min <= max"}
	}
	if f.MaxOrdersPerDay < 1 {
		return &ConfigError{Field: "MAX_ORDERS_PER_DAY", Message: "must be at least 1"}
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return &ConfigError{Field: "CONFIDENCE_THRESHOLD", Message: "must be within [0, 1]"}
	}
	return nil
}

// IsDevelopment reports whether logs should be human-readable
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ToPrefilterConfig converts to the pre-filter configuration
func (c *Config) ToPrefilterConfig() usecase.PrefilterConfig {
	return usecase.PrefilterConfig{
		MinLength:       c.Filter.MinTextLength,
		MaxLength:       c.Filter.MaxTextLength,
		MinContentRunes: c.Filter.MinContentRunes,
		MaxOrdersPerDay: c.Filter.MaxOrdersPerDay,
		Location:        c.Location,
	}
}

// ToGuardConfig converts to the abuse guard configuration
func (c *Config) ToGuardConfig() usecase.GuardConfig {
	return usecase.GuardConfig{
		Cooldown:        c.Filter.Cooldown,
		MaxOrdersPerDay: c.Filter.MaxOrdersPerDay,
		Location:        c.Location,
	}
}

// ToClassifierConfig converts to the classifier configuration
func (c *Config) ToClassifierConfig() usecase.ClassifierConfig {
	return usecase.ClassifierConfig{
		DefaultPrompt: c.Prompts.Classifier.SystemPrompt,
		Threshold:     c.Classifier.Threshold,
		Timeout:       c.Classifier.Timeout,
	}
}

// ToPipelineConfig converts to the pipeline configuration
func (c *Config) ToPipelineConfig() usecase.PipelineConfig {
	notice := usecase.DefaultNoticeConfig()
	notice.Header = c.Prompts.Notice.Header
	notice.BlockLabel = c.Prompts.Notice.BlockLabel
	notice.DialURLTemplate = c.Delivery.DialURLTemplate

	return usecase.PipelineConfig{
		ExtractOnForce: c.Classifier.ExtractOnForce,
		ProfileTimeout: 5 * time.Second,
		Notice:         notice,
	}
}

// ToBizConfig converts to the usecase layer configuration
func (c *Config) ToBizConfig() biz.Config {
	return biz.Config{
		Prefilter:   c.ToPrefilterConfig(),
		Guard:       c.ToGuardConfig(),
		Classifier:  c.ToClassifierConfig(),
		Pipeline:    c.ToPipelineConfig(),
		SendTimeout: c.Delivery.SendTimeout,
		Location:    c.Location,
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.setParseErr(key, fmt.Sprintf("not an integer: %q", v))
		return def
	}
	return n
}

func (c *Config) envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.setParseErr(key, fmt.Sprintf("not a number: %q", v))
		return def
	}
	return f
}

func (c *Config) envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.setParseErr(key, fmt.Sprintf("not a boolean: %q", v))
		return def
	}
	return b
}

// envDuration accepts a Go duration ("15s") or a bare number of seconds
func (c *Config) envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.setParseErr(key, fmt.Sprintf("not a duration: %q", v))
		return def
	}
	return d
}

func (c *Config) setParseErr(field, msg string) {
	if c.parseErr == nil {
		c.parseErr = &ConfigError{Field: field, Message: msg}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
