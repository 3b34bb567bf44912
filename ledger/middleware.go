package ledger

import (
	"context"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/alovak/cardledger/ledger/models"
	"golang.org/x/exp/slog"
)

// Middleware describes a ledger (as opposed to HTTP) middleware.
type Middleware func(Ledger) Ledger

// LoggingMiddleware logs every ledger call with its outcome. PINs are never logged.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Ledger) Ledger {
		return loggingMiddleware{logger: logger, next: next}
	}
}

type loggingMiddleware struct {
	logger *slog.Logger
	next   Ledger
}

func (mw loggingMiddleware) log(ctx context.Context, method string, err error, attrs ...slog.Attr) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Any("err", err))
	}
	mw.logger.LogAttrs(ctx, level, method, attrs...)
}

func (mw loggingMiddleware) Register(ctx context.Context) (acc models.Account, err error) {
	defer func() {
		mw.log(ctx, "Register", err, slog.String("card", cardgen.MaskPAN(acc.Card.Number)))
	}()
	return mw.next.Register(ctx)
}

func (mw loggingMiddleware) Deposit(ctx context.Context, acc models.Account, amount int64) (out models.Account, err error) {
	defer func() {
		mw.log(ctx, "Deposit", err,
			slog.String("card", cardgen.MaskPAN(acc.Card.Number)),
			slog.Int64("amount", amount),
			slog.Int64("balance", out.Balance))
	}()
	return mw.next.Deposit(ctx, acc, amount)
}

func (mw loggingMiddleware) ValidateRecipient(ctx context.Context, sender models.Account, recipient string) (err error) {
	defer func() {
		mw.log(ctx, "ValidateRecipient", err,
			slog.String("card", cardgen.MaskPAN(sender.Card.Number)),
			slog.String("recipient", cardgen.MaskPAN(recipient)))
	}()
	return mw.next.ValidateRecipient(ctx, sender, recipient)
}

func (mw loggingMiddleware) Transfer(ctx context.Context, sender models.Account, recipient string, amount int64) (out models.Account, err error) {
	defer func() {
		mw.log(ctx, "Transfer", err,
			slog.String("card", cardgen.MaskPAN(sender.Card.Number)),
			slog.String("recipient", cardgen.MaskPAN(recipient)),
			slog.Int64("amount", amount),
			slog.Int64("balance", out.Balance))
	}()
	return mw.next.Transfer(ctx, sender, recipient, amount)
}

func (mw loggingMiddleware) Close(ctx context.Context, acc models.Account) (err error) {
	defer func() {
		mw.log(ctx, "Close", err, slog.String("card", cardgen.MaskPAN(acc.Card.Number)))
	}()
	return mw.next.Close(ctx, acc)
}

func (mw loggingMiddleware) Refresh(ctx context.Context, acc models.Account) (out models.Account, err error) {
	defer func() {
		mw.log(ctx, "Refresh", err, slog.String("card", cardgen.MaskPAN(acc.Card.Number)))
	}()
	return mw.next.Refresh(ctx, acc)
}
