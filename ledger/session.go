package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/alovak/cardledger/ledger/models"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Session is either logged out or logged in to exactly one account, whose snapshot it
// replaces with the stored state returned by every ledger operation.
type Session struct {
	id      string
	ledger  Ledger
	store   AccountStore
	logger  *slog.Logger
	current *models.Account
}

func NewSession(ledger Ledger, store AccountStore, logger *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ledger: ledger,
		store:  store,
		logger: logger.With(slog.String("session", id)),
	}
}

func (s *Session) ID() string { return s.id }

// Current returns the account snapshot while logged in.
func (s *Session) Current() (models.Account, bool) {
	if s.current == nil {
		return models.Account{}, false
	}
	return *s.current, true
}

func (s *Session) LoggedIn() bool { return s.current != nil }

// Register issues a card. It does not log the new card in.
func (s *Session) Register(ctx context.Context) (models.Card, error) {
	acc, err := s.ledger.Register(ctx)
	if err != nil {
		return models.Card{}, err
	}
	return acc.Card, nil
}

// Login authenticates by the exact (number, pin) pair.
func (s *Session) Login(ctx context.Context, number, pin string) (models.Account, error) {
	if s.current != nil {
		return *s.current, models.ErrAlreadyLoggedIn
	}
	acc, err := s.store.Lookup(ctx, number, pin)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("login rejected", slog.String("card", cardgen.MaskPAN(number)))
		return models.Account{}, models.ErrAuthFailure
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("authenticating: %w", err)
	}
	s.current = &acc
	s.logger.Info("logged in", slog.String("card", cardgen.MaskPAN(number)))
	return acc, nil
}

func (s *Session) Logout() error {
	if s.current == nil {
		return models.ErrNotLoggedIn
	}
	s.logger.Info("logged out", slog.String("card", cardgen.MaskPAN(s.current.Card.Number)))
	s.current = nil
	return nil
}

func (s *Session) Balance() (int64, error) {
	if s.current == nil {
		return 0, models.ErrNotLoggedIn
	}
	return s.current.Balance, nil
}

func (s *Session) Deposit(ctx context.Context, amount int64) (models.Account, error) {
	if s.current == nil {
		return models.Account{}, models.ErrNotLoggedIn
	}
	acc, err := s.ledger.Deposit(ctx, *s.current, amount)
	if err != nil {
		return *s.current, err
	}
	s.current = &acc
	return acc, nil
}

// CheckRecipient validates a transfer target before an amount is asked for.
func (s *Session) CheckRecipient(ctx context.Context, recipient string) error {
	if s.current == nil {
		return models.ErrNotLoggedIn
	}
	return s.ledger.ValidateRecipient(ctx, *s.current, recipient)
}

func (s *Session) Transfer(ctx context.Context, recipient string, amount int64) (models.Account, error) {
	if s.current == nil {
		return models.Account{}, models.ErrNotLoggedIn
	}
	acc, err := s.ledger.Transfer(ctx, *s.current, recipient, amount)
	if err != nil {
		return *s.current, err
	}
	s.current = &acc
	return acc, nil
}

// CloseAccount deletes the logged-in account and logs out.
func (s *Session) CloseAccount(ctx context.Context) error {
	if s.current == nil {
		return models.ErrNotLoggedIn
	}
	if err := s.ledger.Close(ctx, *s.current); err != nil {
		return err
	}
	s.current = nil
	return nil
}
