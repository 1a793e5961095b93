// Package ratelimit implements per-capability call budgets over fixed time
// windows, keyed by client address.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"dreamlog-backend/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Capability string

const (
	General  Capability = "general"
	Story    Capability = "story"
	Image    Capability = "image"
	Analysis Capability = "analysis"
	Speech   Capability = "speech"
)

// Budget caps a capability at Limit admissions per Window.
type Budget struct {
	Limit  int
	Window time.Duration
}

// DefaultBudgets returns the production quotas.
func DefaultBudgets() map[Capability]Budget {
	return map[Capability]Budget{
		General:  {Limit: 100, Window: 15 * time.Minute},
		Story:    {Limit: 5, Window: time.Minute},
		Image:    {Limit: 3, Window: time.Minute},
		Analysis: {Limit: 5, Window: time.Minute},
		Speech:   {Limit: 10, Window: time.Minute},
	}
}

// Counter increments the admission count for key inside the current window
// of the given capability and reports how long until that window resets.
type Counter interface {
	Incr(ctx context.Context, capability Capability, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

var budgetDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dreamlog_budget_decisions_total",
		Help: "Rate budget admissions by capability and outcome.",
	},
	[]string{"capability", "outcome"},
)

type Tracker struct {
	budgets map[Capability]Budget
	counter Counter
	logger  *zap.Logger
}

func NewTracker(budgets map[Capability]Budget, counter Counter, logger *zap.Logger) *Tracker {
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		budgets: budgets,
		counter: counter,
		logger:  logger.With(zap.String("component", "ratelimit")),
	}
}

// Admit records one call for (capability, clientKey) and reports whether it
// fits the budget. Capabilities without a configured budget are always
// admitted. Counter failures fail open.
func (t *Tracker) Admit(ctx context.Context, capability Capability, clientKey string) Decision {
	budget, ok := t.budgets[capability]
	if !ok || budget.Limit <= 0 {
		return Decision{Allowed: true}
	}

	count, resetIn, err := t.counter.Incr(ctx, capability, clientKey, budget.Window)
	if err != nil {
		t.logger.Warn("budget counter unavailable, admitting",
			zap.String("capability", string(capability)),
			zap.Error(err),
		)
		budgetDecisions.WithLabelValues(string(capability), "error").Inc()
		return Decision{Allowed: true, Limit: budget.Limit, Remaining: budget.Limit}
	}

	if count > int64(budget.Limit) {
		budgetDecisions.WithLabelValues(string(capability), "rejected").Inc()
		return Decision{Allowed: false, Limit: budget.Limit, RetryAfter: resetIn}
	}

	budgetDecisions.WithLabelValues(string(capability), "allowed").Inc()
	return Decision{
		Allowed:   true,
		Limit:     budget.Limit,
		Remaining: budget.Limit - int(count),
	}
}

// Require is Admit that converts a rejection into a budget_exceeded error.
func (t *Tracker) Require(ctx context.Context, capability Capability, clientKey string) error {
	d := t.Admit(ctx, capability, clientKey)
	if d.Allowed {
		return nil
	}
	return &apperr.Error{
		Reason:     apperr.BudgetExceeded,
		Op:         "ratelimit." + string(capability),
		Err:        fmt.Errorf("%s budget of %d exhausted, retry in %s", capability, d.Limit, d.RetryAfter.Round(time.Second)),
		RetryAfter: d.RetryAfter,
	}
}
