// Package gateway defines the narrow contracts to the remote payment
// collaborators. The core never talks card processing itself; it consumes
// these capability sets and maps their failures onto the local error taxonomy.
package gateway

import (
	"context"

	"salonpos/internal/models"
)

// PaymentIntent is the remote representation of an amount to be collected.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64 // minor units
	Currency     string
	Status       string
}

// TerminalGateway is the card-present orchestration service. Amounts are in
// minor units (øre/cents), matching the remote API.
type TerminalGateway interface {
	// CreateConnectionToken mints the credential the reader session needs.
	CreateConnectionToken(ctx context.Context) (string, error)

	// ListReaders returns the readers registered to the account.
	ListReaders(ctx context.Context) ([]models.TerminalDevice, error)

	// CreatePaymentIntent registers the amount to collect.
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*PaymentIntent, error)

	// CollectPaymentMethod drives the reader to take a card presentment
	// for the intent. Blocks until presented, failed or cancelled.
	CollectPaymentMethod(ctx context.Context, readerID, intentID string) error

	// CapturePayment captures the collected presentment.
	CapturePayment(ctx context.Context, intentID string) (*PaymentIntent, error)

	// CancelCollection aborts an in-progress collection on the reader.
	CancelCollection(ctx context.Context, readerID string) error

	// CancelPaymentIntent voids an intent that will not be captured.
	CancelPaymentIntent(ctx context.Context, intentID string) error

	// Refund returns funds against a captured intent and reports the
	// remote refund reference.
	Refund(ctx context.Context, intentID string, amountMinor int64) (string, error)
}

// WalletSession is an initiated mobile-wallet payment: the customer is sent
// to RedirectURL and the merchant polls/receives callbacks for Reference.
type WalletSession struct {
	RedirectURL string
	Reference   string
}

// WalletGateway is the mobile wallet redirect-flow collaborator.
type WalletGateway interface {
	InitiatePayment(ctx context.Context, amount float64, currency, orderRef, fallbackURL string) (*WalletSession, error)
	GetStatus(ctx context.Context, reference string) (string, error)
	Capture(ctx context.Context, reference string, amount float64) error
	Refund(ctx context.Context, reference string, amount float64) error
}
