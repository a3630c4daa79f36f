package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Market    MarketConfig    `mapstructure:"market"`
	Cycle     CycleConfig     `mapstructure:"cycle"`
	Weights   WeightsConfig   `mapstructure:"weights"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// APITokenEnv names the variable holding the bearer token for /api/.
	// Unset or empty leaves the API open.
	APITokenEnv string `mapstructure:"api_token_env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// DBConfig selects the record store. Driver "memory" keeps everything in
// process; "postgres" opens DSN through gorm.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	QuoteTTL      time.Duration `mapstructure:"quote_ttl"`
}

type AgentsConfig struct {
	CallTimeout time.Duration   `mapstructure:"call_timeout"`
	ChatGPT     ResponderConfig `mapstructure:"chatgpt"`
	Gemini      ResponderConfig `mapstructure:"gemini"`
	Grok        ResponderConfig `mapstructure:"grok"`
	DeepSeek    ResponderConfig `mapstructure:"deepseek"`
}

// ResponderConfig describes one external decision source. The key itself is
// never stored in config; APIKeyEnv names the variable that carries it.
type ResponderConfig struct {
	APIKeyEnv string `mapstructure:"api_key_env"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type MarketConfig struct {
	Provider  string        `mapstructure:"provider"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BarCount  int           `mapstructure:"bar_count"`
}

type CycleConfig struct {
	AgentDelay      time.Duration `mapstructure:"agent_delay"`
	DefaultTicker   string        `mapstructure:"default_ticker"`
	DefaultStrategy string        `mapstructure:"default_strategy"`
	TradeQuantity   int           `mapstructure:"trade_quantity"`
	CritiqueEnabled bool          `mapstructure:"critique_enabled"`
}

type WeightsConfig struct {
	FloorEnabled bool    `mapstructure:"floor_enabled"`
	Floor        float64 `mapstructure:"floor"`
}

type StreamConfig struct {
	PriceInterval string `mapstructure:"price_interval"`
}

type BroadcastConfig struct {
	Buffer int `mapstructure:"buffer"`
}

func Load(path string, envOnly bool) (Config, error) {
	// Provider keys usually live in a local .env; a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":5000")
	v.SetDefault("server.api_token_env", "AR_API_TOKEN")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.quote_ttl", "15s")

	v.SetDefault("agents.call_timeout", "30s")
	v.SetDefault("agents.chatgpt.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("agents.chatgpt.base_url", "https://api.openai.com/v1")
	v.SetDefault("agents.chatgpt.model", "gpt-4o")
	v.SetDefault("agents.chatgpt.max_tokens", 512)
	v.SetDefault("agents.gemini.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("agents.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("agents.gemini.model", "gemini-2.5-flash")
	v.SetDefault("agents.gemini.max_tokens", 512)
	v.SetDefault("agents.grok.api_key_env", "XAI_API_KEY")
	v.SetDefault("agents.grok.base_url", "https://api.x.ai/v1")
	v.SetDefault("agents.grok.model", "grok-2-1212")
	v.SetDefault("agents.grok.max_tokens", 512)
	v.SetDefault("agents.deepseek.api_key_env", "DEEPSEEK_API_KEY")
	v.SetDefault("agents.deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("agents.deepseek.model", "deepseek-chat")
	v.SetDefault("agents.deepseek.max_tokens", 512)

	v.SetDefault("market.provider", "alphavantage")
	v.SetDefault("market.api_key_env", "ALPHA_VANTAGE_API_KEY")
	v.SetDefault("market.base_url", "https://www.alphavantage.co")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.bar_count", 100)

	v.SetDefault("cycle.agent_delay", "1s")
	v.SetDefault("cycle.default_ticker", "AAPL")
	v.SetDefault("cycle.default_strategy", "Momentum Trading")
	v.SetDefault("cycle.trade_quantity", 10)
	v.SetDefault("cycle.critique_enabled", false)

	// Weights are unbounded unless a floor is switched on explicitly.
	v.SetDefault("weights.floor_enabled", false)
	v.SetDefault("weights.floor", 0.0)

	v.SetDefault("stream.price_interval", "@every 5s")
	v.SetDefault("broadcast.buffer", 64)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
