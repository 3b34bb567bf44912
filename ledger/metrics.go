package ledger

import (
	"context"
	"time"

	"github.com/alovak/cardledger/ledger/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts ledger calls by method and outcome.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_requests_total",
				Help: "Total number of ledger operations",
			},
			[]string{"method", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

func (m *Metrics) observe(method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func InstrumentingMiddleware(m *Metrics) Middleware {
	return func(next Ledger) Ledger {
		return instrumentingMiddleware{m: m, next: next}
	}
}

type instrumentingMiddleware struct {
	m    *Metrics
	next Ledger
}

func (mw instrumentingMiddleware) Register(ctx context.Context) (acc models.Account, err error) {
	defer func(begin time.Time) { mw.m.observe("Register", begin, err) }(time.Now())
	return mw.next.Register(ctx)
}

func (mw instrumentingMiddleware) Deposit(ctx context.Context, acc models.Account, amount int64) (out models.Account, err error) {
	defer func(begin time.Time) { mw.m.observe("Deposit", begin, err) }(time.Now())
	return mw.next.Deposit(ctx, acc, amount)
}

func (mw instrumentingMiddleware) ValidateRecipient(ctx context.Context, sender models.Account, recipient string) (err error) {
	defer func(begin time.Time) { mw.m.observe("ValidateRecipient", begin, err) }(time.Now())
	return mw.next.ValidateRecipient(ctx, sender, recipient)
}

func (mw instrumentingMiddleware) Transfer(ctx context.Context, sender models.Account, recipient string, amount int64) (out models.Account, err error) {
	defer func(begin time.Time) { mw.m.observe("Transfer", begin, err) }(time.Now())
	return mw.next.Transfer(ctx, sender, recipient, amount)
}

func (mw instrumentingMiddleware) Close(ctx context.Context, acc models.Account) (err error) {
	defer func(begin time.Time) { mw.m.observe("Close", begin, err) }(time.Now())
	return mw.next.Close(ctx, acc)
}

func (mw instrumentingMiddleware) Refresh(ctx context.Context, acc models.Account) (out models.Account, err error) {
	defer func(begin time.Time) { mw.m.observe("Refresh", begin, err) }(time.Now())
	return mw.next.Refresh(ctx, acc)
}
