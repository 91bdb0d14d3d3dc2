package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/ledger"
	"voltfarm/internal/logger"
	"voltfarm/internal/mining"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort         string
	DatabaseURL     string
	DevMode         bool
	AllowedOrigin   string
	LogLevel        string
	LogJSON         bool
	JWTSecret       string
	BotEnabled      bool
	BotToken        string
	BotUsername     string
	WebAppShortName string

	// добавить в env tg id админов бота
	AdminTelegramIDs []int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	APIRateLimit     int
	APIRateWindow    time.Duration
	AuthRateLimit    int
	AuthRateWindow   time.Duration
	ActionRateLimit  int
	ActionRateWindow time.Duration

	StoreTimeout time.Duration

	// Mining economy
	YieldPerGPUPerSecond float64
	HeatSaturation       time.Duration
	CoolingMultiplier    float64
	ReferralBonus        float64
	CheckInBaseReward    float64
	CheckInMaxStreak     int
	MinWithdraw          float64
	MinReferrals         int
	MinShares            int
	AutoCollect          bool
	TrustClientBalance   bool

	// Payments (Telegram Stars)
	GPUPriceStars        int64
	CoolingPriceStars    int64
	PaymentWebhookSecret string
	InvoiceTTL           time.Duration
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// FromEnv builds the config from the process environment without loading .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		AppPort:         envString("APP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DevMode:         os.Getenv("DEV_MODE") == "true",
		AllowedOrigin:   os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		LogJSON:         os.Getenv("LOG_JSON") == "true",
		JWTSecret:       os.Getenv("JWT_SECRET"),
		BotEnabled:      os.Getenv("BOT_ENABLED") == "true",
		BotToken:        os.Getenv("BOT_TOKEN"),
		BotUsername:     envString("BOT_USERNAME", "VoltFarmBot"),
		WebAppShortName: envString("WEBAPP_SHORT_NAME", "farm"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		APIRateLimit:     envInt("API_RATE_LIMIT", 120),
		APIRateWindow:    envSeconds("API_RATE_WINDOW_SECONDS", time.Minute),
		AuthRateLimit:    envInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:   envSeconds("AUTH_RATE_WINDOW_SECONDS", time.Minute),
		ActionRateLimit:  envInt("ACTION_RATE_LIMIT", 60),
		ActionRateWindow: envSeconds("ACTION_RATE_WINDOW", time.Minute),

		StoreTimeout: envSeconds("STORE_TIMEOUT_SECONDS", 5*time.Second),

		YieldPerGPUPerSecond: envFloat("YIELD_PER_GPU_PER_SECOND", mining.DefaultYieldPerGPUPerSecond),
		HeatSaturation:       envHours("HEAT_SATURATION_HOURS", mining.DefaultSaturationPeriod),
		CoolingMultiplier:    envFloat("COOLING_MULTIPLIER", ledger.DefaultCoolingMultiplier),
		ReferralBonus:        envFloat("REFERRAL_BONUS", 50),
		CheckInBaseReward:    envFloat("CHECKIN_BASE_REWARD", 1),
		CheckInMaxStreak:     envInt("CHECKIN_MAX_STREAK", 7),
		MinWithdraw:          envFloat("MIN_WITHDRAW", 300),
		MinReferrals:         envInt("MIN_REFERRALS", 10),
		MinShares:            envInt("MIN_SHARES", 5),
		AutoCollect:          os.Getenv("AUTO_COLLECT") == "true",
		TrustClientBalance:   os.Getenv("TRUST_CLIENT_BALANCE") == "true",

		GPUPriceStars:        int64(envInt("GPU_PRICE_STARS", 50)),
		CoolingPriceStars:    int64(envInt("COOLING_PRICE_STARS", 30)),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		InvoiceTTL:           time.Duration(envInt("INVOICE_TTL_MINUTES", 60)) * time.Minute,
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if cfg.BotEnabled && cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is not set")
	}

	// Проверка тг id админов !! ЧЕРЕЗ ЗАПЯТУЮ В ENV !!
	if s := os.Getenv("ADMIN_TELEGRAM_IDS"); s != "" {
		for _, idStr := range strings.Split(s, ",") {
			idStr = strings.TrimSpace(idStr)
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				cfg.AdminTelegramIDs = append(cfg.AdminTelegramIDs, id)
			}
		}
	}

	return cfg, nil
}

// MiningParams returns the accrual tuning.
func (c *Config) MiningParams() mining.Params {
	p := mining.DefaultParams()
	p.YieldPerGPUPerSecond = c.YieldPerGPUPerSecond
	p.SaturationPeriod = c.HeatSaturation
	return p
}

// WithdrawRules returns the payout gate.
func (c *Config) WithdrawRules() ledger.Rules {
	return ledger.Rules{
		MinWithdraw:  c.MinWithdraw,
		MinReferrals: c.MinReferrals,
		MinShares:    c.MinShares,
	}
}

// CheckInRules returns the daily check-in schedule.
func (c *Config) CheckInRules() ledger.CheckInRules {
	r := ledger.DefaultCheckInRules()
	r.BaseReward = c.CheckInBaseReward
	r.MaxStreak = c.CheckInMaxStreak
	return r
}

// Offers returns the upgrade catalog priced from config.
func (c *Config) Offers() []domain.UpgradeOffer {
	return []domain.UpgradeOffer{
		{ID: "gpu_1", Title: "GPU x1", Kind: domain.UpgradeGPU, Power: 1, PriceStars: c.GPUPriceStars},
		{ID: "gpu_5", Title: "GPU x5", Kind: domain.UpgradeGPU, Power: 5, PriceStars: c.GPUPriceStars * 5 * 9 / 10},
		{ID: "cooling_1", Title: "Cooling x1", Kind: domain.UpgradeCooling, Power: 1, PriceStars: c.CoolingPriceStars},
		{ID: "cooling_3", Title: "Cooling x3", Kind: domain.UpgradeCooling, Power: 3, PriceStars: c.CoolingPriceStars * 3 * 9 / 10},
	}
}

// IsAdmin reports whether tgID is listed in ADMIN_TELEGRAM_IDS.
func (c *Config) IsAdmin(tgID int64) bool {
	for _, id := range c.AdminTelegramIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func envHours(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Hour))
		}
	}
	return def
}
