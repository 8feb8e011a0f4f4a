package providers

import (
	"github.com/rs/zerolog"
	app "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/infrastructure/config"
)

// Ports bundles the assembled adapters behind the application ports.
type Ports struct {
	Compliance app.ComplianceScreeningPort
	Funds      app.FundsReservationPort
	Ledger     app.LedgerPort
	Settlement app.SettlementPort
	Notifier   app.NotificationPort
}

// Build assembles the mock providers with circuit breakers on the
// network-facing ones. A non-nil ledger overrides the in-memory default.
func Build(cfg *config.ProvidersConfig, ledger app.LedgerPort, logger zerolog.Logger) Ports {
	breaker := BreakerSettings{
		Threshold: cfg.CircuitBreakerThreshold,
		Timeout:   cfg.CircuitBreakerTimeout,
	}

	compliance := NewMockComplianceService(
		WithComplianceLatency(cfg.MockLatency),
		WithComplianceFailureRate(cfg.MockFailureRate),
	)
	settlement := NewMockSettlementRail("rail",
		WithSettlementLatency(cfg.MockLatency),
		WithSettlementTimeoutRate(cfg.MockFailureRate),
	)

	if ledger == nil {
		ledger = NewMemoryLedger()
	}

	return Ports{
		Compliance: NewBreakerCompliance(compliance, breaker),
		Funds: NewMockAccountsService(
			WithAccountsLatency(cfg.MockLatency),
			WithAccountsFailureRate(cfg.MockFailureRate),
		),
		Ledger:     ledger,
		Settlement: NewBreakerSettlement(settlement, breaker),
		Notifier:   NewMockNotifier(logger, WithNotifierLatency(cfg.MockLatency)),
	}
}
