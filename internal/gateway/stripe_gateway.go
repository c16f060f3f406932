package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"salonpos/internal/models"
)

// StripeGateway implements TerminalGateway against the Stripe Terminal API.
type StripeGateway struct {
	client *client.API
}

// NewStripeGateway creates a gateway bound to the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{client: api}
}

// CreateConnectionToken mints a terminal connection token.
func (g *StripeGateway) CreateConnectionToken(ctx context.Context) (string, error) {
	params := &stripe.TerminalConnectionTokenParams{}
	params.Context = ctx
	token, err := g.client.TerminalConnectionTokens.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return token.Secret, nil
}

// ListReaders returns all readers registered to the account.
func (g *StripeGateway) ListReaders(ctx context.Context) ([]models.TerminalDevice, error) {
	params := &stripe.TerminalReaderListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var devices []models.TerminalDevice
	iter := g.client.TerminalReaders.List(params)
	for iter.Next() {
		reader := iter.TerminalReader()
		devices = append(devices, models.TerminalDevice{
			ID:           reader.ID,
			Label:        reader.Label,
			SerialNumber: reader.SerialNumber,
			DeviceType:   string(reader.DeviceType),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return devices, nil
}

// CreatePaymentIntent registers a card-present intent with manual capture so
// the collect and capture sub-steps stay distinct.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card_present"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toPaymentIntent(intent), nil
}

// CollectPaymentMethod hands the intent to the reader for card presentment.
func (g *StripeGateway) CollectPaymentMethod(ctx context.Context, readerID, intentID string) error {
	params := &stripe.TerminalReaderProcessPaymentIntentParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if _, err := g.client.TerminalReaders.ProcessPaymentIntent(readerID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// CapturePayment captures the presented payment.
func (g *StripeGateway) CapturePayment(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	intent, err := g.client.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toPaymentIntent(intent), nil
}

// CancelCollection aborts the reader's current action.
func (g *StripeGateway) CancelCollection(ctx context.Context, readerID string) error {
	params := &stripe.TerminalReaderCancelActionParams{}
	params.Context = ctx
	if _, err := g.client.TerminalReaders.CancelAction(readerID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// CancelPaymentIntent voids an intent.
func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(intentID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// Refund returns funds against a captured intent.
func (g *StripeGateway) Refund(ctx context.Context, intentID string, amountMinor int64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountMinor),
	}
	params.Context = ctx
	refund, err := g.client.Refunds.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return refund.ID, nil
}

func toPaymentIntent(intent *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
	}
}

// mapStripeError converts Stripe failures to the local payment taxonomy so a
// decline is distinguishable from a network timeout by errors.As.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined, stripe.ErrorCodeExpiredCard, stripe.ErrorCodeIncorrectCVC:
			return &models.PaymentError{Kind: models.PaymentDeclined, Reason: stripeErr.Msg}
		case stripe.ErrorCodePaymentIntentActionRequired:
			return &models.PaymentError{Kind: models.PaymentTimeout, Reason: stripeErr.Msg}
		default:
			return &models.PaymentError{Kind: models.PaymentNetwork, Reason: stripeErr.Msg}
		}
	}
	if errors.Is(err, context.Canceled) {
		return &models.PaymentError{Kind: models.PaymentCancelled, Reason: "operation cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.PaymentError{Kind: models.PaymentTimeout, Reason: "remote call timed out"}
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
