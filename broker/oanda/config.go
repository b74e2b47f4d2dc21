package oanda

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries connection settings for the OANDA v20 REST API.
// Credentials come from the environment, optionally via a .env file.
type Config struct {
	BaseURL   string
	Token     string
	AccountID string
	Timeout   time.Duration
}

// BaseURL resolves the REST host for an environment name.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return "https://api-fxpractice.oanda.com", nil
	case "live":
		return "https://api-fxtrade.oanda.com", nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// ConfigFromEnv loads OANDA_TOKEN, OANDA_ACCOUNT_ID, and OANDA_ENV from the
// process environment. A .env file in the working directory is merged in
// first when present.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("OANDA_TOKEN")
	if token == "" {
		return Config{}, errors.New("OANDA_TOKEN not set")
	}
	account := os.Getenv("OANDA_ACCOUNT_ID")
	if account == "" {
		return Config{}, errors.New("OANDA_ACCOUNT_ID not set")
	}
	base, err := BaseURL(os.Getenv("OANDA_ENV"))
	if err != nil {
		return Config{}, err
	}
	return Config{
		BaseURL:   base,
		Token:     token,
		AccountID: account,
		Timeout:   15 * time.Second,
	}, nil
}
