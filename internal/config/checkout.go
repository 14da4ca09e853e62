package config

import "time"

type CheckoutConfig struct {
	SessionAPIURL string
	SessionAPIKey string
	// StartDelay offsets the first installment from the subscribe request.
	StartDelay      time.Duration
	SessionTimeout  time.Duration
	MaxInstallments int
}

func loadCheckout() CheckoutConfig {
	return CheckoutConfig{
		SessionAPIURL:   mustenv("CHECKOUT_API_URL"),
		SessionAPIKey:   getenv("CHECKOUT_API_KEY", ""),
		StartDelay:      durationEnvSeconds("SUBSCRIPTION_START_DELAY", 3*time.Minute),
		SessionTimeout:  durationEnvSeconds("CHECKOUT_API_TIMEOUT", 15*time.Second),
		MaxInstallments: intEnv("MAX_INSTALLMENTS", 120),
	}
}
