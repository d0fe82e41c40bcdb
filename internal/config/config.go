package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable of the trader. It is loaded once at startup and
// passed by value or pointer into constructors; nothing else reads the environment.
type Config struct {
	// Alpaca
	APIKey          string `env:"ALPACA_API_KEY"`
	APISecret       string `env:"ALPACA_SECRET_KEY"`
	LegacyAPIKey    string `env:"APCA_API_KEY_ID"`
	LegacyAPISecret string `env:"APCA_API_SECRET_KEY"`
	BaseURL         string `env:"ALPACA_BASE_URL" envDefault:"https://paper-api.alpaca.markets"`
	DataURL         string `env:"ALPACA_DATA_URL"`
	DataFeed        string `env:"ALPACA_DATA_FEED" envDefault:"iex"`

	// Trading
	Symbol        string  `env:"SYMBOL" envDefault:"BOIL"`
	InverseSymbol string  `env:"INVERSE_SYMBOL" envDefault:"KOLD"`
	PositionSize  float64 `env:"POSITION_SIZE" envDefault:"1000"`
	BuyThreshold  float64 `env:"BUY_THRESHOLD" envDefault:"0.3"`
	SellThreshold float64 `env:"SELL_THRESHOLD" envDefault:"-0.3"`

	// Signal weights
	TemperatureWeight float64 `env:"TEMPERATURE_WEIGHT" envDefault:"0.5"`
	InventoryWeight   float64 `env:"INVENTORY_WEIGHT" envDefault:"0.4"`
	StormWeight       float64 `env:"STORM_WEIGHT" envDefault:"0.1"`

	// Data sources
	WeatherAPIURL  string        `env:"WEATHER_API_URL" envDefault:"https://api.open-meteo.com/v1/forecast"`
	WeatherRegions []string      `env:"WEATHER_REGIONS" envSeparator:";" envDefault:"40.7128,-74.0060;41.8781,-87.6298;42.3601,-71.0589;39.9526,-75.1652;42.3314,-83.0458"`
	EIAAPIKey      string        `env:"EIA_API_KEY"`
	EIAAPIURL      string        `env:"EIA_API_URL" envDefault:"https://api.eia.gov/v2/natural-gas/stor/wkly/data/"`
	NOAAAPIURL     string        `env:"NOAA_API_URL" envDefault:"https://api.weather.gov/alerts"`
	NOAAUserAgent  string        `env:"NOAA_USER_AGENT" envDefault:"natgas-trader/1.0"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Logging & journal
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile           string `env:"LOG_FILE" envDefault:"trading_bot.log"`
	LogMaxSizeMB      int64  `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups     int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogDir            string `env:"LOG_DIR" envDefault:"logs"`
	JournalSQLitePath string `env:"JOURNAL_SQLITE_PATH"`

	// Timing
	CancelSettleDelay time.Duration `env:"CANCEL_SETTLE_DELAY" envDefault:"1s"`
	RetrySettleDelay  time.Duration `env:"RETRY_SETTLE_DELAY" envDefault:"2s"`
	FillSettleDelay   time.Duration `env:"FILL_SETTLE_DELAY" envDefault:"2s"`
	FailureBackoff    time.Duration `env:"FAILURE_BACKOFF" envDefault:"5m"`

	// Notifications (optional)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
}

// ErrMissingCredentials is returned by Validate when either Alpaca credential is empty.
var ErrMissingCredentials = errors.New("alpaca API credentials not found: set ALPACA_API_KEY and ALPACA_SECRET_KEY")

// Load reads config.env and then .env into the process environment (both
// optional, existing variables win) and parses the result.
func Load() (*Config, error) {
	for _, f := range []string{"config.env", ".env"} {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("file", f).Msg("Loaded environment file")
		}
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = cfg.LegacyAPIKey
	}
	if cfg.APISecret == "" {
		cfg.APISecret = cfg.LegacyAPISecret
	}
	return &cfg, nil
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return ErrMissingCredentials
	}

	var problems []string
	if c.Symbol == "" || c.InverseSymbol == "" || c.Symbol == c.InverseSymbol {
		problems = append(problems, fmt.Sprintf("SYMBOL (%q) and INVERSE_SYMBOL (%q) must be two different tickers", c.Symbol, c.InverseSymbol))
	}
	if c.PositionSize <= 0 {
		problems = append(problems, fmt.Sprintf("POSITION_SIZE must be positive, got %v", c.PositionSize))
	}
	if c.SellThreshold >= c.BuyThreshold {
		problems = append(problems, fmt.Sprintf("SELL_THRESHOLD (%v) must be below BUY_THRESHOLD (%v)", c.SellThreshold, c.BuyThreshold))
	}
	if c.FailureBackoff <= 0 {
		problems = append(problems, fmt.Sprintf("FAILURE_BACKOFF must be positive, got %s", c.FailureBackoff))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"CANCEL_SETTLE_DELAY", c.CancelSettleDelay},
		{"RETRY_SETTLE_DELAY", c.RetrySettleDelay},
		{"FILL_SETTLE_DELAY", c.FillSettleDelay},
	} {
		if d.value < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative, got %s", d.name, d.value))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LogSummary prints the effective configuration with secrets masked.
func (c *Config) LogSummary() {
	log.Info().
		Str("alpaca_base_url", c.BaseURL).
		Str("alpaca_data_feed", c.DataFeed).
		Str("alpaca_api_key", mask(c.APIKey)).
		Str("alpaca_secret_key", mask(c.APISecret)).
		Str("symbol", c.Symbol).
		Str("inverse_symbol", c.InverseSymbol).
		Float64("position_size", c.PositionSize).
		Float64("buy_threshold", c.BuyThreshold).
		Float64("sell_threshold", c.SellThreshold).
		Float64("temperature_weight", c.TemperatureWeight).
		Float64("inventory_weight", c.InventoryWeight).
		Float64("storm_weight", c.StormWeight).
		Int("weather_regions", len(c.WeatherRegions)).
		Str("eia_api_key", mask(c.EIAAPIKey)).
		Str("telegram_bot_token", mask(c.TelegramBotToken)).
		Str("log_dir", c.LogDir).
		Msg("Configuration loaded")
}

// mask shows only the last 4 characters of a secret.
func mask(val string) string {
	if val == "" {
		return "(unset)"
	}
	if len(val) > 4 {
		return "***" + val[len(val)-4:]
	}
	return "***"
}
