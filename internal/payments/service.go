// Package payments prepares Stripe payment sheets for checkout. The daemon
// only creates the intent server-side; card entry and confirmation happen in
// the app through Stripe's own SDK.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/SeaWiser/shoes-sync/pkg/config"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// stripeAPIVersion pins the ephemeral key to the SDK version the app
	// ships with.
	stripeAPIVersion = "2025-07-30.basil"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Sheet is everything the app needs to present Stripe's payment sheet.
type Sheet struct {
	PaymentIntentSecret string `json:"paymentIntent"`
	EphemeralKeySecret  string `json:"ephemeralKey"`
	CustomerID          string `json:"customer"`
}

type Service struct {
	api         *stripe.Client
	environment string
	currency    string
	logg        *logger.Logger

	mu        sync.Mutex
	customers map[string]string
}

// NewService initializes Stripe once with the configured secrets and env.
func NewService(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Service, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}
	return &Service{
		api:         stripe.NewClient(apiKey),
		environment: env,
		currency:    cfg.Currency,
		logg:        logg,
		customers:   make(map[string]string),
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (s *Service) Environment() string {
	if s == nil {
		return ""
	}
	return s.environment
}

// PaymentSheet creates a payment intent for the amount and returns the sheet
// credentials. The Stripe customer is created on first use and reused for the
// lifetime of the process.
func (s *Service) PaymentSheet(ctx context.Context, userID, email string, amount decimal.Decimal) (*Sheet, error) {
	if s == nil || s.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments are not configured")
	}
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	minor := MinorUnits(amount)
	if minor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	customerID, err := s.customerFor(ctx, userID, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating stripe customer")
	}

	key, err := s.api.V1EphemeralKeys.Create(ctx, &stripe.EphemeralKeyCreateParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(stripeAPIVersion),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating ephemeral key")
	}

	intent, err := s.api.V1PaymentIntents.Create(ctx, &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(s.currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating payment intent")
	}

	return &Sheet{
		PaymentIntentSecret: intent.ClientSecret,
		EphemeralKeySecret:  key.Secret,
		CustomerID:          customerID,
	}, nil
}

func (s *Service) customerFor(ctx context.Context, userID, email string) (string, error) {
	s.mu.Lock()
	id, ok := s.customers[userID]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	customer, err := s.api.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID,
		},
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.customers[userID] = customer.ID
	s.mu.Unlock()
	return customer.ID, nil
}

// MinorUnits converts a decimal amount into the currency's minor units,
// rounding half up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
