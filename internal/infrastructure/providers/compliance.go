// Package providers holds the adapters behind the application ports:
// mock external services for local development and tests, plus circuit
// breaker wrappers for the services that sit across a network boundary.
package providers

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	app "github.com/vhorak/payflow/internal/application/payment"
)

// MockComplianceService simulates an AML/sanctions screening service with
// deterministic risk scoring, so the same payment always lands in the same
// risk band.
type MockComplianceService struct {
	ruleSetVersion string
	latency        time.Duration
	failureRate    float64
	scoreFn        func(req app.ScreeningRequest) float64
}

type MockComplianceOption func(*MockComplianceService)

func WithComplianceLatency(d time.Duration) MockComplianceOption {
	return func(s *MockComplianceService) { s.latency = d }
}

func WithComplianceFailureRate(rate float64) MockComplianceOption {
	return func(s *MockComplianceService) { s.failureRate = rate }
}

func WithRuleSetVersion(v string) MockComplianceOption {
	return func(s *MockComplianceService) { s.ruleSetVersion = v }
}

// WithScoreFn overrides the scoring function, for tests that steer a
// payment into a specific band.
func WithScoreFn(fn func(req app.ScreeningRequest) float64) MockComplianceOption {
	return func(s *MockComplianceService) { s.scoreFn = fn }
}

func NewMockComplianceService(opts ...MockComplianceOption) *MockComplianceService {
	s := &MockComplianceService{
		ruleSetVersion: "aml-rules-2026.1",
		latency:        50 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	if s.scoreFn == nil {
		s.scoreFn = defaultScore
	}
	return s
}

func (s *MockComplianceService) Screen(ctx context.Context, req app.ScreeningRequest) (*app.ScreeningResult, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < s.failureRate {
		return nil, domainErrors.ErrComplianceUnavailable
	}

	score := s.scoreFn(req)
	var flags []string
	if score >= 0.7 {
		flags = append(flags, "pattern-match")
	}
	if strings.Contains(strings.ToLower(req.Reference), "crypto") {
		flags = append(flags, "high-risk-keyword")
	}

	return &app.ScreeningResult{
		Passed:         score < 0.9,
		RiskScore:      score,
		Flags:          flags,
		RuleSetVersion: s.ruleSetVersion,
	}, nil
}

// defaultScore hashes the counterparties into a stable base score and bumps
// it for large amounts and flagged keywords.
func defaultScore(req app.ScreeningRequest) float64 {
	h := fnv.New32a()
	h.Write([]byte(req.Payer.String()))
	h.Write([]byte(req.Payee.String()))
	score := float64(h.Sum32()%1000) / 1000 * 0.25

	if req.Amount.ValueMinor >= 10_000_00 {
		score += 0.2
	}
	if strings.Contains(strings.ToLower(req.Reference), "crypto") {
		score += 0.5
	}
	if score > 1 {
		score = 1
	}
	return score
}
