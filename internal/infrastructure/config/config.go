package config

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port       string   `env:"PORT,        default=8080"`
	Env        string   `env:"ENV,         default=development"`
	JWTSecret  string   `env:"JWT_SECRET,  required"`
	LogLevel   string   `env:"LOG_LEVEL,   default=info"`
	CORSOrigin []string `env:"CORS_ORIGIN, default=*"`
	BodyLimit  string   `env:"BODY_LIMIT,  default=1M"`

	Mongo  MongoConfig
	Redis  RedisConfig
	Auth   AuthConfig
	SMTP   SMTPConfig
	Kafka  KafkaConfig
	Notify NotifyConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=gatekeeper"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type AuthConfig struct {
	TokenExpireIn              time.Duration `env:"AUTH_TOKEN_EXPIRE_IN,              default=2h"`
	ResetInterval              time.Duration `env:"AUTH_RESET_INTERVAL,               default=60s"`
	OTPExpireIn                time.Duration `env:"AUTH_OTP_EXPIRE_IN,                default=5m"`
	SendInterval               time.Duration `env:"AUTH_SEND_INTERVAL,                default=60s"`
	EmailConfirmationRequired  bool          `env:"AUTH_EMAIL_CONFIRMATION_REQUIRED,  default=false"`
	MobileConfirmationRequired bool          `env:"AUTH_MOBILE_CONFIRMATION_REQUIRED, default=false"`
	DefaultCountryCode         string        `env:"AUTH_DEFAULT_COUNTRY_CODE,         default=+98"`
}

type SMTPConfig struct {
	Host          string `env:"SMTP_HOST"`
	Port          int    `env:"SMTP_PORT,           default=587"`
	Username      string `env:"SMTP_USERNAME"`
	Password      string `env:"SMTP_PASSWORD"`
	From          string `env:"SMTP_FROM,           default=no-reply@localhost"`
	TemplatesPath string `env:"SMTP_TEMPLATES_PATH, default=templates"`
}

type KafkaConfig struct {
	Brokers  []string `env:"KAFKA_BROKERS,   default=localhost:9092"`
	SMSTopic string   `env:"KAFKA_SMS_TOPIC, default=sms-outbound"`
}

type NotifyConfig struct {
	Workers    int `env:"NOTIFY_WORKERS,     default=4"`
	BufferSize int `env:"NOTIFY_BUFFER_SIZE, default=256"`
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load reads configuration from environment variables using go-envconfig.
func Load(log zerolog.Logger) *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	return &cfg
}
