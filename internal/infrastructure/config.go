package infrastructure

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, loaded from the environment
// with optional .env overrides for development.
type Config struct {
	HTTPAddr  string
	JWTSecret string

	Database DatabaseConfig

	Payment PaymentConfig
	Ledger  LedgerConfig
}

// DatabaseConfig contains the PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// PaymentConfig collects the per-provider credentials. A provider with
// empty credentials is simply not registered.
type PaymentConfig struct {
	ReturnURL string
	NotifyURL string
	Subject   string

	AlipayAppID          string
	AlipayGatewayURL     string
	AlipayPrivateKeyPath string
	AlipayPublicKeyPath  string

	WechatAppID            string
	WechatMchID            string
	WechatSerialNo         string
	WechatAPIv3Key         string
	WechatPrivateKeyPath   string
	WechatPlatformCertPath string
	WechatAPIBaseURL       string

	StripeAPIKey        string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	StripeCurrency      string
}

// LedgerConfig points at the Fabric gateway REST endpoint.
type LedgerConfig struct {
	BaseURL         string
	Channel         string
	Chaincode       string
	RequestTimeout  time.Duration
	TransferTimeout time.Duration
}

// LoadConfig reads configuration from the environment. A .env file is
// loaded when present; missing files are not an error.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "settlement"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Payment: PaymentConfig{
			ReturnURL: getEnv("PAYMENT_RETURN_URL", "http://localhost:8080/api/payment/return"),
			NotifyURL: getEnv("PAYMENT_NOTIFY_URL", ""),
			Subject:   getEnv("PAYMENT_SUBJECT", "Handcraft order"),

			AlipayAppID:          getEnv("ALIPAY_APP_ID", ""),
			AlipayGatewayURL:     getEnv("ALIPAY_GATEWAY_URL", "https://openapi.alipay.com/gateway.do"),
			AlipayPrivateKeyPath: getEnv("ALIPAY_PRIVATE_KEY_PATH", ""),
			AlipayPublicKeyPath:  getEnv("ALIPAY_PUBLIC_KEY_PATH", ""),

			WechatAppID:            getEnv("WECHAT_APP_ID", ""),
			WechatMchID:            getEnv("WECHAT_MCH_ID", ""),
			WechatSerialNo:         getEnv("WECHAT_SERIAL_NO", ""),
			WechatAPIv3Key:         getEnv("WECHAT_APIV3_KEY", ""),
			WechatPrivateKeyPath:   getEnv("WECHAT_PRIVATE_KEY_PATH", ""),
			WechatPlatformCertPath: getEnv("WECHAT_PLATFORM_CERT_PATH", ""),
			WechatAPIBaseURL:       getEnv("WECHAT_API_BASE_URL", ""),

			StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:8080/api/payment/return"),
			StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:8080/api/payment/return"),
			StripeCurrency:      getEnv("STRIPE_CURRENCY", "usd"),
		},
		Ledger: LedgerConfig{
			BaseURL:         getEnv("LEDGER_BASE_URL", "http://localhost:9090"),
			Channel:         getEnv("LEDGER_CHANNEL", "heritagechannel"),
			Chaincode:       getEnv("LEDGER_CHAINCODE", "miaoasset"),
			RequestTimeout:  getDurationEnv("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
			TransferTimeout: getDurationEnv("LEDGER_TRANSFER_TIMEOUT", 30*time.Second),
		},
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
