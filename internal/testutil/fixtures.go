package testutil

import (
	"io"

	"github.com/cassiomorais/charge-gateway/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// NewTestMetrics returns metrics registered against a private registry so
// tests do not collide on the default one.
func NewTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

// NewTestLogger returns a silent logger.
func NewTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// ChargeRequest returns a valid charge request for tests.
func ChargeRequest(customerID string, amount int64) map[string]any {
	return map[string]any{
		"customerId":         customerID,
		"amount":             amount,
		"currency":           "PLN",
		"paymentMethodToken": "pm_1",
	}
}
