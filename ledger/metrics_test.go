package ledger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/alovak/cardledger/ledger"
	"github.com/alovak/cardledger/ledger/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrumentingMiddleware(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store := ledger.NewRepository()
	seed(t, store, account(aliceCard, 10), account(bobCard, 0))

	svc := ledger.InstrumentingMiddleware(ledger.NewMetrics(reg))(ledger.NewService(store, nil, nil, discardLogger()))

	_, err := svc.Deposit(ctx, account(aliceCard, 10), 5)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, account(aliceCard, 15), 0)
	require.ErrorIs(t, err, models.ErrInvalidAmount)
	_, err = svc.Transfer(ctx, account(aliceCard, 15), bobCard, 15)
	require.NoError(t, err)

	expected := `
# HELP ledger_requests_total Total number of ledger operations
# TYPE ledger_requests_total counter
ledger_requests_total{method="Deposit",outcome="error"} 1
ledger_requests_total{method="Deposit",outcome="ok"} 1
ledger_requests_total{method="Transfer",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ledger_requests_total"))
	n, err := testutil.GatherAndCount(reg, "ledger_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
