package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/alovak/cardledger/ledger/models"
	"golang.org/x/exp/slog"
)

// AccountStore is the persistence contract the ledger consumes.
type AccountStore interface {
	// Lookup matches number and pin together; a mismatch is ErrNotFound.
	Lookup(ctx context.Context, number, pin string) (models.Account, error)
	Exists(ctx context.Context, number string) (bool, error)
	// Insert returns ErrDuplicateKey when the number is taken.
	Insert(ctx context.Context, acc models.Account) error
	AdjustBalance(ctx context.Context, number string, delta int64) error
	// Transfer moves amount atomically, failing with models.ErrInsufficientFunds
	// when from no longer holds it.
	Transfer(ctx context.Context, from, to string, amount int64) error
	Remove(ctx context.Context, number string) error
	Ping(ctx context.Context) error
}

// CredentialGenerator mints a card number and PIN.
type CredentialGenerator interface {
	GenerateCredentials() (number, pin string, err error)
}

// Ledger is the set of balance operations offered to a session.
type Ledger interface {
	Register(ctx context.Context) (models.Account, error)
	Deposit(ctx context.Context, acc models.Account, amount int64) (models.Account, error)
	ValidateRecipient(ctx context.Context, sender models.Account, recipient string) error
	Transfer(ctx context.Context, sender models.Account, recipient string, amount int64) (models.Account, error)
	Close(ctx context.Context, acc models.Account) error
	Refresh(ctx context.Context, acc models.Account) (models.Account, error)
}

type Service struct {
	store  AccountStore
	gen    CredentialGenerator
	cfg    *Config
	logger *slog.Logger
}

func NewService(store AccountStore, gen CredentialGenerator, cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if gen == nil {
		gen = cardgen.NewGenerator(nil)
	}
	return &Service{
		store:  store,
		gen:    gen,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Register issues a new card with a zero balance, regenerating the number when the
// store already holds it.
func (s *Service) Register(ctx context.Context) (models.Account, error) {
	attempts := s.cfg.IssueAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		number, pin, err := s.gen.GenerateCredentials()
		if err != nil {
			return models.Account{}, fmt.Errorf("generating credentials: %w", err)
		}
		acc := models.Account{Card: models.Card{Number: number, PIN: pin}}
		err = s.store.Insert(ctx, acc)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return models.Account{}, fmt.Errorf("creating account: %w", err)
		}
		s.logger.Debug("card number collision, regenerating",
			slog.String("card", cardgen.MaskPAN(number)), slog.Int("attempt", attempt))
	}
	return models.Account{}, fmt.Errorf("could not issue unique card after %d attempts: %w", attempts, ErrDuplicateKey)
}

// Deposit adds amount to the account and returns the stored state. A deposit that
// would push the balance past math.MaxInt64 is ErrBalanceOverflow.
func (s *Service) Deposit(ctx context.Context, acc models.Account, amount int64) (models.Account, error) {
	if amount <= 0 {
		return acc, models.ErrInvalidAmount
	}
	if acc.Balance > 0 && amount > math.MaxInt64-acc.Balance {
		return acc, models.ErrBalanceOverflow
	}
	if err := s.store.AdjustBalance(ctx, acc.Card.Number, amount); err != nil {
		return acc, fmt.Errorf("depositing: %w", err)
	}
	return s.resync(ctx, acc), nil
}

// ValidateRecipient runs the recipient checks of Transfer without touching the store
// beyond an existence lookup.
func (s *Service) ValidateRecipient(ctx context.Context, sender models.Account, recipient string) error {
	if recipient == sender.Card.Number {
		return models.ErrSelfTransfer
	}
	if !cardgen.IsValid(recipient) {
		return models.ErrMalformedRecipient
	}
	ok, err := s.store.Exists(ctx, recipient)
	if err != nil {
		return fmt.Errorf("finding recipient: %w", err)
	}
	if !ok {
		return models.ErrUnknownRecipient
	}
	return nil
}

// Transfer moves amount from sender to recipient. Checks run in order and the first
// failure leaves the store untouched. A credit the recipient cannot hold is rejected
// by the store with ErrBalanceOverflow.
func (s *Service) Transfer(ctx context.Context, sender models.Account, recipient string, amount int64) (models.Account, error) {
	if err := s.ValidateRecipient(ctx, sender, recipient); err != nil {
		return sender, err
	}
	if amount <= 0 {
		return sender, models.ErrInvalidAmount
	}
	if amount > sender.Balance {
		return sender, models.ErrInsufficientFunds
	}
	if err := s.store.Transfer(ctx, sender.Card.Number, recipient, amount); err != nil {
		return sender, fmt.Errorf("transferring: %w", err)
	}
	return s.resync(ctx, sender), nil
}

// Close deletes the account. A remaining balance is forfeited.
func (s *Service) Close(ctx context.Context, acc models.Account) error {
	if err := s.store.Remove(ctx, acc.Card.Number); err != nil {
		return fmt.Errorf("closing account: %w", err)
	}
	if acc.Balance != 0 {
		s.logger.Warn("account closed with nonzero balance",
			slog.String("card", cardgen.MaskPAN(acc.Card.Number)), slog.Int64("forfeited", acc.Balance))
	}
	return nil
}

// Refresh re-reads the account. When the row is gone the prior snapshot is returned.
func (s *Service) Refresh(ctx context.Context, acc models.Account) (models.Account, error) {
	fresh, err := s.store.Lookup(ctx, acc.Card.Number, acc.Card.PIN)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("account vanished during refresh, keeping snapshot",
			slog.String("card", cardgen.MaskPAN(acc.Card.Number)))
		return acc, nil
	}
	if err != nil {
		return acc, fmt.Errorf("refreshing account: %w", err)
	}
	return fresh, nil
}

// resync refreshes after a write that already succeeded, so failures only get logged.
func (s *Service) resync(ctx context.Context, acc models.Account) models.Account {
	fresh, err := s.Refresh(ctx, acc)
	if err != nil {
		s.logger.Error("refresh after write failed", slog.String("card", cardgen.MaskPAN(acc.Card.Number)), slog.Any("err", err))
	}
	return fresh
}
