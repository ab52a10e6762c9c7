package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const masked = "******"

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server       ServerConfig
		Database     DatabaseConfig
		Razorpay     RazorpayConfig
		Zoom         ZoomConfig
		Subscription SubscriptionConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RazorpayConfig struct {
		KeyID     string
		KeySecret string
		Currency  string
	}

	ZoomConfig struct {
		AccountID       string
		ClientID        string
		ClientSecret    string
		BaseURL         string
		TokenURL        string
		HostUser        string
		RequestTimeout  time.Duration
		DefaultDuration time.Duration
	}

	SubscriptionConfig struct {
		ExpirySweepInterval time.Duration
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// String renders the configuration with every secret masked.
func (conf Config) String() string {
	c := conf
	c.SecretKey = mask(c.SecretKey)
	c.SendgridApiKey = mask(c.SendgridApiKey)
	c.RollbarToken = mask(c.RollbarToken)
	c.Database.Password = mask(c.Database.Password)
	c.Database.AdminPassword = mask(c.Database.AdminPassword)
	c.Razorpay.KeySecret = mask(c.Razorpay.KeySecret)
	c.Zoom.ClientSecret = mask(c.Zoom.ClientSecret)
	type plain Config // drop the String method to avoid recursion
	return fmt.Sprintf("%+v", plain(c))
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("APP_NAME", "Masomo Live")
	v.SetDefault("BUILD", "dev")
	v.SetDefault("DEBUG", true)
	v.SetDefault("TEST_MODE", false)
	v.SetDefault("SECRET_KEY", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:8080")
	v.SetDefault("DEFAULT_FROM_EMAIL", "Masomo Live <noreply@localhost>")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("ROLLBAR_TOKEN", "")

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_ADDRESS", ":8000")
	v.SetDefault("SERVER_DEBUG_HOST", ":4000")
	v.SetDefault("SERVER_READ_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER_JWT_EXPIRATION_DELTA", 7*24*time.Hour)

	v.SetDefault("DATABASE_ENGINE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_NAME", "masomo_live")
	v.SetDefault("DATABASE_USER", "masomo")
	v.SetDefault("DATABASE_PASSWORD", "masomo")
	v.SetDefault("DATABASE_ADMIN_USER", "postgres")
	v.SetDefault("DATABASE_ADMIN_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DISABLE_TLS", true)

	v.SetDefault("RAZORPAY_KEY_ID", "")
	v.SetDefault("RAZORPAY_KEY_SECRET", "")
	v.SetDefault("RAZORPAY_CURRENCY", "INR")

	v.SetDefault("ZOOM_ACCOUNT_ID", "")
	v.SetDefault("ZOOM_CLIENT_ID", "")
	v.SetDefault("ZOOM_CLIENT_SECRET", "")
	v.SetDefault("ZOOM_BASE_URL", "https://api.zoom.us/v2")
	v.SetDefault("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token")
	v.SetDefault("ZOOM_HOST_USER", "me")
	v.SetDefault("ZOOM_REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("ZOOM_DEFAULT_DURATION", 2*time.Hour)

	v.SetDefault("SUBSCRIPTION_EXPIRY_SWEEP_INTERVAL", time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("TEST_MODE", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("DEFAULT_FROM_EMAIL"))
	if err != nil {
		log.Fatalf("config.ParseAddress(DEFAULT_FROM_EMAIL): %v", err)
	}

	return &Config{
		AppName:          v.GetString("APP_NAME"),
		Env:              env,
		Build:            v.GetString("BUILD"),
		Debug:            v.GetBool("DEBUG"),
		TestMode:         v.GetBool("TEST_MODE"),
		SecretKey:        v.GetString("SECRET_KEY"),
		FrontendBaseURL:  v.GetString("FRONTEND_BASE_URL"),
		DefaultFromEmail: *fromEmail,
		SendgridApiKey:   v.GetString("SENDGRID_API_KEY"),
		RollbarToken:     v.GetString("ROLLBAR_TOKEN"),
		Server: ServerConfig{
			Host:               v.GetString("SERVER_HOST"),
			Address:            v.GetString("SERVER_ADDRESS"),
			DebugHost:          v.GetString("SERVER_DEBUG_HOST"),
			ReadTimeout:        v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:       v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout:    v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			JWTExpirationDelta: v.GetDuration("SERVER_JWT_EXPIRATION_DELTA"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("DATABASE_ENGINE"),
			Host:          v.GetString("DATABASE_HOST"),
			Port:          v.GetInt("DATABASE_PORT"),
			Name:          v.GetString("DATABASE_NAME"),
			User:          v.GetString("DATABASE_USER"),
			Password:      v.GetString("DATABASE_PASSWORD"),
			AdminUser:     v.GetString("DATABASE_ADMIN_USER"),
			AdminPassword: v.GetString("DATABASE_ADMIN_PASSWORD"),
			DisableTLS:    v.GetBool("DATABASE_DISABLE_TLS"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     v.GetString("RAZORPAY_KEY_ID"),
			KeySecret: v.GetString("RAZORPAY_KEY_SECRET"),
			Currency:  v.GetString("RAZORPAY_CURRENCY"),
		},
		Zoom: ZoomConfig{
			AccountID:       v.GetString("ZOOM_ACCOUNT_ID"),
			ClientID:        v.GetString("ZOOM_CLIENT_ID"),
			ClientSecret:    v.GetString("ZOOM_CLIENT_SECRET"),
			BaseURL:         v.GetString("ZOOM_BASE_URL"),
			TokenURL:        v.GetString("ZOOM_TOKEN_URL"),
			HostUser:        v.GetString("ZOOM_HOST_USER"),
			RequestTimeout:  v.GetDuration("ZOOM_REQUEST_TIMEOUT"),
			DefaultDuration: v.GetDuration("ZOOM_DEFAULT_DURATION"),
		},
		Subscription: SubscriptionConfig{
			ExpirySweepInterval: v.GetDuration("SUBSCRIPTION_EXPIRY_SWEEP_INTERVAL"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no .env lookup, no external credentials.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Masomo Live",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:8080",
		DefaultFromEmail: mail.Address{Name: "Masomo Live", Address: "noreply@localhost"},
		Server: ServerConfig{
			Address:            ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Razorpay: RazorpayConfig{
			KeyID:     "rzp_test_key",
			KeySecret: "test_secret_key",
			Currency:  "INR",
		},
		Zoom: ZoomConfig{
			RequestTimeout:  time.Second,
			DefaultDuration: time.Hour,
		},
		Subscription: SubscriptionConfig{ExpirySweepInterval: time.Hour},
	}
}
