// Package console drives a ledger session from a line-oriented terminal menu.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/alovak/cardledger/ledger/models"
	"golang.org/x/exp/slog"
)

const (
	mainMenu = "1. Create an account\n" +
		"2. Log into account\n" +
		"0. Exit\n"

	accountMenu = "1. Balance\n" +
		"2. Add income\n" +
		"3. Do transfer\n" +
		"4. Close account\n" +
		"5. Log out\n" +
		"0. Exit\n"

	msgInvalidItem   = "You've entered invalid menu item.\n\n"
	msgInvalidAmount = "The amount must be a positive whole number.\n\n"
	msgStoreFailure  = "Something went wrong, please try again later.\n\n"
	msgOverflow      = "The balance cannot hold that amount.\n\n"
	msgBye           = "Bye!\n"
)

// Session is the account state machine the console operates.
type Session interface {
	Register(ctx context.Context) (models.Card, error)
	Login(ctx context.Context, number, pin string) (models.Account, error)
	Logout() error
	Balance() (int64, error)
	Deposit(ctx context.Context, amount int64) (models.Account, error)
	CheckRecipient(ctx context.Context, recipient string) error
	Transfer(ctx context.Context, recipient string, amount int64) (models.Account, error)
	CloseAccount(ctx context.Context) error
}

// errExit ends the menu loop from inside the account menu.
var errExit = errors.New("exit")

type Console struct {
	in      io.Reader
	out     io.Writer
	session Session
	logger  *slog.Logger
	tokens  chan string
	done    chan struct{}
}

func New(in io.Reader, out io.Writer, session Session, logger *slog.Logger) *Console {
	return &Console{
		in:      in,
		out:     out,
		session: session,
		logger:  logger.With(slog.String("component", "console")),
	}
}

// Run shows the main menu until the user exits, input ends or ctx is done.
// Exit and end of input return nil.
func (c *Console) Run(ctx context.Context) error {
	c.tokens = make(chan string)
	c.done = make(chan struct{})
	defer close(c.done)
	go c.scan(c.tokens, c.done)

	for {
		c.print(mainMenu)
		input, err := c.next(ctx)
		if err != nil {
			return c.stop(err)
		}

		switch input {
		case "0":
			c.print("\n" + msgBye)
			return nil
		case "1":
			if err := c.register(ctx); err != nil {
				return c.stop(err)
			}
		case "2":
			if err := c.login(ctx); err != nil {
				return c.stop(err)
			}
		default:
			c.print(msgInvalidItem)
		}
	}
}

func (c *Console) stop(err error) error {
	switch {
	case errors.Is(err, errExit):
		return nil
	case errors.Is(err, io.EOF):
		c.print("\n" + msgBye)
		return nil
	default:
		return err
	}
}

// scan splits input on whitespace, like the menu prompts expect. It stops at the end
// of input, or at the first token read after done is closed.
func (c *Console) scan(tokens chan<- string, done <-chan struct{}) {
	defer close(tokens)
	scanner := bufio.NewScanner(c.in)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		select {
		case tokens <- scanner.Text():
		case <-done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("reading input", slog.Any("err", err))
	}
}

func (c *Console) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case tok, ok := <-c.tokens:
		if !ok {
			return "", io.EOF
		}
		return tok, nil
	}
}

func (c *Console) nextAmount(ctx context.Context) (int64, bool, error) {
	tok, err := c.next(ctx)
	if err != nil {
		return 0, false, err
	}
	amount, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return amount, true, nil
}

func (c *Console) print(s string) {
	io.WriteString(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) register(ctx context.Context) error {
	card, err := c.session.Register(ctx)
	if err != nil {
		c.failure("register", err)
		return nil
	}
	c.printf("\nYour card has been created\nYour card number:\n%s\nYour card PIN:\n%s\n\n", card.Number, card.PIN)
	return nil
}

func (c *Console) login(ctx context.Context) error {
	c.print("\nEnter your card number:\n")
	number, err := c.next(ctx)
	if err != nil {
		return err
	}
	c.print("Enter your PIN:\n")
	pin, err := c.next(ctx)
	if err != nil {
		return err
	}

	_, err = c.session.Login(ctx, cardgen.NormalizePAN(number), pin)
	switch {
	case err == nil:
		c.print("\nYou have successfully logged in!\n\n")
		return c.accountLoop(ctx)
	case errors.Is(err, models.ErrAuthFailure):
		c.print("\nWrong card number or PIN!\n\n")
	default:
		c.failure("login", err)
	}
	return nil
}

// accountLoop runs the account menu until logout, close or exit.
func (c *Console) accountLoop(ctx context.Context) error {
	for {
		c.print(accountMenu)
		input, err := c.next(ctx)
		if err != nil {
			return err
		}
		c.print("\n")

		switch input {
		case "0":
			c.print(msgBye)
			return errExit
		case "1":
			balance, err := c.session.Balance()
			if err != nil {
				return err
			}
			c.printf("Balance: %d\n\n", balance)
		case "2":
			if err := c.addIncome(ctx); err != nil {
				return err
			}
		case "3":
			if err := c.transfer(ctx); err != nil {
				return err
			}
		case "4":
			if err := c.session.CloseAccount(ctx); err != nil {
				c.failure("close account", err)
				continue
			}
			c.print("The account has been closed!\n\n")
			return nil
		case "5":
			if err := c.session.Logout(); err != nil {
				return err
			}
			c.print("You have successfully logged out!\n\n")
			return nil
		default:
			c.print(msgInvalidItem)
		}
	}
}

func (c *Console) addIncome(ctx context.Context) error {
	c.print("Enter income:\n")
	amount, ok, err := c.nextAmount(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.print(msgInvalidAmount)
		return nil
	}

	_, err = c.session.Deposit(ctx, amount)
	switch {
	case err == nil:
		c.print("Income was added!\n\n")
	case errors.Is(err, models.ErrInvalidAmount):
		c.print(msgInvalidAmount)
	case errors.Is(err, models.ErrBalanceOverflow):
		c.print(msgOverflow)
	default:
		c.failure("deposit", err)
	}
	return nil
}

func (c *Console) transfer(ctx context.Context) error {
	c.print("Transfer\nEnter card number:\n")
	tok, err := c.next(ctx)
	if err != nil {
		return err
	}
	recipient := cardgen.NormalizePAN(tok)

	if err := c.session.CheckRecipient(ctx, recipient); err != nil {
		c.transferFailure(err)
		return nil
	}

	c.print("Enter how much money you want to transfer:\n")
	amount, ok, err := c.nextAmount(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.print(msgInvalidAmount)
		return nil
	}

	if _, err := c.session.Transfer(ctx, recipient, amount); err != nil {
		c.transferFailure(err)
		return nil
	}
	c.print("Success!\n\n")
	return nil
}

func (c *Console) transferFailure(err error) {
	switch {
	case errors.Is(err, models.ErrSelfTransfer):
		c.print("You can't transfer money to the same account!\n\n")
	case errors.Is(err, models.ErrMalformedRecipient):
		c.print("Probably you made a mistake in the card number. Please try again!\n\n")
	case errors.Is(err, models.ErrUnknownRecipient):
		c.print("Such a card does not exist.\n\n")
	case errors.Is(err, models.ErrInvalidAmount):
		c.print(msgInvalidAmount)
	case errors.Is(err, models.ErrInsufficientFunds):
		c.print("Not enough money!\n\n")
	case errors.Is(err, models.ErrBalanceOverflow):
		c.print(msgOverflow)
	default:
		c.failure("transfer", err)
	}
}

func (c *Console) failure(op string, err error) {
	c.logger.Error(op+" failed", slog.Any("err", err))
	c.print(msgStoreFailure)
}
