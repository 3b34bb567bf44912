package console

import (
	"bytes"
	"context"
	"io"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alovak/cardledger/ledger"
	"github.com/alovak/cardledger/ledger/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const (
	aliceCard = "4000004938320896"
	bobCard   = "4000002454329010"
)

type fixture struct {
	store *ledger.Repository
	out   *bytes.Buffer
}

func newFixture(t *testing.T, accounts ...models.Account) *fixture {
	t.Helper()
	store := ledger.NewRepository()
	for _, acc := range accounts {
		require.NoError(t, store.Insert(context.Background(), acc))
	}
	return &fixture{store: store, out: &bytes.Buffer{}}
}

func (f *fixture) run(t *testing.T, script string) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(f.store, nil, nil, logger)
	session := ledger.NewSession(svc, f.store, logger)

	err := New(strings.NewReader(script), f.out, session, logger).Run(context.Background())
	require.NoError(t, err)
	return f.out.String()
}

func (f *fixture) balance(t *testing.T, number string) int64 {
	t.Helper()
	acc, err := f.store.Lookup(context.Background(), number, "1234")
	require.NoError(t, err)
	return acc.Balance
}

func card(number string, balance int64) models.Account {
	return models.Account{Card: models.Card{Number: number, PIN: "1234"}, Balance: balance}
}

func TestExit(t *testing.T) {
	out := newFixture(t).run(t, "0\n")
	require.Equal(t, mainMenu+"\nBye!\n", out)
}

func TestEndOfInputExits(t *testing.T) {
	out := newFixture(t).run(t, "")
	require.Equal(t, mainMenu+"\nBye!\n", out)

	out = newFixture(t, card(aliceCard, 0)).run(t, "2 "+aliceCard)
	require.True(t, strings.HasSuffix(out, "Enter your PIN:\n\nBye!\n"), out)
}

func TestInvalidMenuItem(t *testing.T) {
	out := newFixture(t).run(t, "7\n0\n")
	require.Equal(t, mainMenu+msgInvalidItem+mainMenu+"\nBye!\n", out)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, "1\n0\n")

	re := regexp.MustCompile(`Your card has been created\nYour card number:\n(400000\d{10})\nYour card PIN:\n(\d{4})\n\n`)
	m := re.FindStringSubmatch(out)
	require.Len(t, m, 3, out)

	acc, err := f.store.Lookup(context.Background(), m[1], m[2])
	require.NoError(t, err)
	require.Zero(t, acc.Balance)
}

func TestWrongCredentials(t *testing.T) {
	out := newFixture(t, card(aliceCard, 0)).run(t, "2\n"+aliceCard+"\n0000\n0\n")

	want := mainMenu +
		"\nEnter your card number:\n" +
		"Enter your PIN:\n" +
		"\nWrong card number or PIN!\n\n" +
		mainMenu +
		"\nBye!\n"
	require.Equal(t, want, out)
}

func TestAccountSession(t *testing.T) {
	f := newFixture(t, card(aliceCard, 0), card(bobCard, 0))

	script := strings.Join([]string{
		"2", aliceCard, "1234",
		"2", "100",
		"1",
		"3", bobCard, "50",
		"1",
		"5",
		"0",
	}, "\n")
	out := f.run(t, script)

	require.Contains(t, out, "\nYou have successfully logged in!\n\n"+accountMenu)
	require.Contains(t, out, "Enter income:\nIncome was added!\n\n")
	require.Contains(t, out, "Balance: 100\n")
	require.Contains(t, out, "Transfer\nEnter card number:\nEnter how much money you want to transfer:\nSuccess!\n\n")
	require.Contains(t, out, "Balance: 50\n")
	require.Contains(t, out, "You have successfully logged out!\n\n"+mainMenu)
	require.True(t, strings.HasSuffix(out, "\nBye!\n"))

	require.Equal(t, int64(50), f.balance(t, aliceCard))
	require.Equal(t, int64(50), f.balance(t, bobCard))
}

func TestTransferRejections(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{"same account", []string{aliceCard}, "You can't transfer money to the same account!\n\n"},
		{"bad checksum", []string{"4000004938320897"}, "Probably you made a mistake in the card number. Please try again!\n\n"},
		{"unknown card", []string{"4000001234567899"}, "Such a card does not exist.\n\n"},
		{"not enough money", []string{bobCard, "11"}, "Not enough money!\n\n"},
		{"not a number", []string{bobCard, "ten"}, msgInvalidAmount},
		{"zero", []string{bobCard, "0"}, msgInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, card(aliceCard, 10), card(bobCard, 0))

			script := append([]string{"2", aliceCard, "1234", "3"}, tt.input...)
			script = append(script, "0")
			out := f.run(t, strings.Join(script, "\n"))

			require.Contains(t, out, tt.want)
			require.NotContains(t, out, "Success!")
			require.Equal(t, int64(10), f.balance(t, aliceCard))
			require.Zero(t, f.balance(t, bobCard))
		})
	}
}

func TestIncomeRejections(t *testing.T) {
	f := newFixture(t, card(aliceCard, 10))
	out := f.run(t, "2 "+aliceCard+" 1234 2 abc 2 -5 0")

	require.Equal(t, 2, strings.Count(out, msgInvalidAmount))
	require.NotContains(t, out, "Income was added!")
	require.Equal(t, int64(10), f.balance(t, aliceCard))
}

func TestCloseAccount(t *testing.T) {
	f := newFixture(t, card(aliceCard, 10))
	out := f.run(t, "2 "+aliceCard+" 1234 4 2 "+aliceCard+" 1234 0")

	require.Contains(t, out, "The account has been closed!\n\n"+mainMenu)
	require.Contains(t, out, "Wrong card number or PIN!")

	ok, err := f.store.Exists(context.Background(), aliceCard)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewRepository()
	session := ledger.NewSession(ledger.NewService(store, nil, nil, logger), store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(r, io.Discard, session, logger).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReleasesScanner(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		// tokens left unread after exit
		newFixture(t).run(t, "0\n1\n2\n")
	}
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBalanceOverflow(t *testing.T) {
	limit := strconv.FormatInt(math.MaxInt64, 10)

	t.Run("income", func(t *testing.T) {
		f := newFixture(t, card(aliceCard, 0))
		out := f.run(t, "2 "+aliceCard+" 1234 2 "+limit+" 2 "+limit+" 0")

		require.Equal(t, 1, strings.Count(out, "Income was added!"))
		require.Contains(t, out, msgOverflow)
		require.Equal(t, int64(math.MaxInt64), f.balance(t, aliceCard))
	})

	t.Run("transfer", func(t *testing.T) {
		f := newFixture(t, card(aliceCard, 10), card(bobCard, math.MaxInt64))
		out := f.run(t, "2 "+aliceCard+" 1234 3 "+bobCard+" 1 0")

		require.Contains(t, out, msgOverflow)
		require.NotContains(t, out, "Success!")
		require.Equal(t, int64(10), f.balance(t, aliceCard))
		require.Equal(t, int64(math.MaxInt64), f.balance(t, bobCard))
	})
}
