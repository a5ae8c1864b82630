// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Image         ImageConfig         `yaml:"image" mapstructure:"image"`
	Translation   TranslationConfig   `yaml:"translation" mapstructure:"translation"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Quota         QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// PublicStoryTTL 公开故事读缓存过期时间
	PublicStoryTTL time.Duration `yaml:"public_story_ttl" mapstructure:"public_story_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ImageConfig 封面图生成配置
type ImageConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Model          string        `yaml:"model" mapstructure:"model"`
	Size           string        `yaml:"size" mapstructure:"size"`
	PromptTemplate string        `yaml:"prompt_template" mapstructure:"prompt_template"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TranslationConfig 翻译配置
type TranslationConfig struct {
	Primary  TranslatorConfig `yaml:"primary" mapstructure:"primary"`
	Fallback TranslatorConfig `yaml:"fallback" mapstructure:"fallback"`
	// MaxTextLength 单次请求最大字符数，0 表示使用语言表默认值
	MaxTextLength int `yaml:"max_text_length" mapstructure:"max_text_length"`
	// RequestTimeout 单次 provider 调用超时
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// MaxAttempts 单个分块的最大尝试次数（含首次）
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
	// Concurrency 单个故事并发翻译的字段数
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// CacheTTL 已翻译字段缓存时间
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// TranslatorConfig 单个翻译提供商配置
type TranslatorConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// GenerationConfig 生成编排配置
type GenerationConfig struct {
	// Provider 使用的 LLM provider 名称，为空时使用 llm.default_provider
	Provider string `yaml:"provider" mapstructure:"provider"`
	// SystemPromptFile / UserPromptFile 提示词模板文件（FString 格式）
	SystemPromptFile string `yaml:"system_prompt_file" mapstructure:"system_prompt_file"`
	UserPromptFile   string `yaml:"user_prompt_file" mapstructure:"user_prompt_file"`
	// EnqueueTimeout 入队确认超时
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout" mapstructure:"enqueue_timeout"`
	// StatusTimeout 任务进度查询超时
	StatusTimeout time.Duration `yaml:"status_timeout" mapstructure:"status_timeout"`
	// JobStatusTTL 任务进度记录保留时间
	JobStatusTTL time.Duration `yaml:"job_status_ttl" mapstructure:"job_status_ttl"`
	// GenerateTimeout 单次文本生成超时
	GenerateTimeout time.Duration `yaml:"generate_timeout" mapstructure:"generate_timeout"`
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	FreeMonthlyLimit int `yaml:"free_monthly_limit" mapstructure:"free_monthly_limit"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// UserHeader 上游网关注入的用户 ID 头
	UserHeader string          `yaml:"user_header" mapstructure:"user_header"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS       CORSConfig      `yaml:"cors" mapstructure:"cors"`
	// WebhookSecret 非空时校验订阅回调的 HMAC-SHA256 签名
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	// CreatesPerMinute 单用户每分钟创建故事次数上限
	CreatesPerMinute int `yaml:"creates_per_minute" mapstructure:"creates_per_minute"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
