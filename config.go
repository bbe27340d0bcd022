package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"smscard-gateway/secret"
)

type LogConfig struct {
	Format       string
	Level        string
	Job          string
	LokiURL      string
	LokiUsername string
	LokiPassword string
}

// Config is everything the gateway reads from the environment.
type Config struct {
	WebListen     string
	APIKey        string
	ProxyProtocol bool

	DatabaseURL string
	MongoURI    string
	MongoDB     string

	AMQPURL   string
	AMQPQueue string

	KafkaBrokers string
	KafkaTopic   string

	TwilioAccountSID string
	TwilioAuthToken  string

	SMPPAddr     string
	SMPPSystemID string
	SMPPPassword string
	SMPPPackGSM7 bool

	DefaultGateway  string
	DeliveryRetries int
	CampaignWorkers int
	TariffFile      string
	Normalize       bool
	PhoneRegion     string

	Log LogConfig
}

// loadConfig reads .env when present and then the process environment.
// Credentials sealed with `smsfmt seal` are opened with SECRET_KEY.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logf := LoggingFormat{Type: LogType.Startup, Level: logrus.DebugLevel, Message: "no .env file, using existing environment variables"}
		logf.Print()
	}
	cfg := configFromEnv(os.Getenv)
	if err := cfg.openSecrets(os.Getenv("SECRET_KEY")); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// openSecrets replaces sealed credentials with their plaintext.
func (c *Config) openSecrets(psk string) error {
	for name, field := range map[string]*string{
		"API_KEY":           &c.APIKey,
		"TWILIO_AUTH_TOKEN": &c.TwilioAuthToken,
		"SMPP_PASSWORD":     &c.SMPPPassword,
		"LOKI_PASSWORD":     &c.Log.LokiPassword,
	} {
		plain, err := secret.Open(*field, psk)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = plain
	}
	return nil
}

func configFromEnv(getenv func(string) string) Config {
	def := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	num := func(key string, fallback int) int {
		n, err := strconv.Atoi(getenv(key))
		if err != nil || n <= 0 {
			return fallback
		}
		return n
	}

	return Config{
		WebListen:     def("WEB_LISTEN", "0.0.0.0:3000"),
		APIKey:        getenv("API_KEY"),
		ProxyProtocol: getenv("HAPROXY_PROXY_PROTOCOL") == "true",

		DatabaseURL: getenv("DATABASE_URL"),
		MongoURI:    getenv("MONGODB_URI"),
		MongoDB:     def("MONGODB_DATABASE", "smscard"),

		AMQPURL:   getenv("AMQP_URL"),
		AMQPQueue: def("AMQP_QUEUE", "sms.segments"),

		KafkaBrokers: getenv("KAFKA_BROKERS"),
		KafkaTopic:   def("KAFKA_TOPIC", "sms.segments"),

		TwilioAccountSID: getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  getenv("TWILIO_AUTH_TOKEN"),

		SMPPAddr:     getenv("SMPP_ADDR"),
		SMPPSystemID: getenv("SMPP_SYSTEM_ID"),
		SMPPPassword: getenv("SMPP_PASSWORD"),
		SMPPPackGSM7: getenv("SMPP_PACK_GSM7") == "true",

		DefaultGateway:  getenv("DEFAULT_GATEWAY"),
		DeliveryRetries: num("DELIVERY_RETRIES", 3),
		CampaignWorkers: num("CAMPAIGN_WORKERS", 4),
		TariffFile:      getenv("TARIFF_FILE"),
		Normalize:       getenv("NORMALIZE_TEXT") == "true",
		PhoneRegion:     def("PHONE_REGION", "US"),

		Log: LogConfig{
			Format:       def("LOG_FORMAT", "json"),
			Level:        def("LOG_LEVEL", "info"),
			Job:          def("LOKI_JOB", "smscard-gateway"),
			LokiURL:      getenv("LOKI_URL"),
			LokiUsername: getenv("LOKI_USERNAME"),
			LokiPassword: getenv("LOKI_PASSWORD"),
		},
	}
}
