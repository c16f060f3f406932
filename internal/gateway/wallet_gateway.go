package gateway

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/guonaihong/gout"
)

// WalletConfig holds the credentials for a Vipps-style ecom API.
type WalletConfig struct {
	APIURL           string
	ClientID         string
	ClientSecret     string
	SubscriptionKey  string
	MerchantSerialNo string
	CallbackPrefix   string
}

// HTTPWalletGateway implements WalletGateway over the wallet provider's REST
// API. Amounts are converted to minor units on the wire.
type HTTPWalletGateway struct {
	cfg WalletConfig
}

// NewHTTPWalletGateway creates a wallet gateway from config.
func NewHTTPWalletGateway(cfg WalletConfig) *HTTPWalletGateway {
	return &HTTPWalletGateway{cfg: cfg}
}

type walletTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type walletInitiateResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

type walletStatusResponse struct {
	TransactionInfo struct {
		Status string `json:"status"`
	} `json:"transactionInfo"`
}

// fetchToken obtains a fresh access token for the API session.
func (g *HTTPWalletGateway) fetchToken(ctx context.Context) (string, error) {
	var resp walletTokenResponse
	var code int
	err := gout.POST(g.cfg.APIURL + "/accesstoken/get").
		WithContext(ctx).
		SetHeader(gout.H{
			"client_id":                 g.cfg.ClientID,
			"client_secret":             g.cfg.ClientSecret,
			"Ocp-Apim-Subscription-Key": g.cfg.SubscriptionKey,
		}).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return "", fmt.Errorf("wallet token request failed: %w", err)
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("wallet token request returned status %d", code)
	}
	return resp.AccessToken, nil
}

func (g *HTTPWalletGateway) headers(token string) gout.H {
	return gout.H{
		"Authorization":             "Bearer " + token,
		"Ocp-Apim-Subscription-Key": g.cfg.SubscriptionKey,
		"Content-Type":              "application/json",
	}
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// InitiatePayment starts a redirect payment and returns the URL to send the
// customer to plus the reference used for callbacks and capture.
func (g *HTTPWalletGateway) InitiatePayment(ctx context.Context, amount float64, currency, orderRef, fallbackURL string) (*WalletSession, error) {
	token, err := g.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	body := gout.H{
		"merchantInfo": gout.H{
			"merchantSerialNumber": g.cfg.MerchantSerialNo,
			"callbackPrefix":       g.cfg.CallbackPrefix,
			"fallBack":             fallbackURL,
		},
		"transaction": gout.H{
			"orderId":         orderRef,
			"amount":          minorUnits(amount),
			"transactionText": "Salon purchase " + orderRef,
		},
	}

	var resp walletInitiateResponse
	var code int
	err = gout.POST(g.cfg.APIURL + "/ecomm/v2/payments").
		WithContext(ctx).
		SetHeader(g.headers(token)).
		SetJSON(body).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return nil, fmt.Errorf("wallet initiate failed: %w", err)
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("wallet initiate returned status %d", code)
	}

	return &WalletSession{RedirectURL: resp.URL, Reference: resp.OrderID}, nil
}

// GetStatus reports the remote transaction status for a reference.
func (g *HTTPWalletGateway) GetStatus(ctx context.Context, reference string) (string, error) {
	token, err := g.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	var resp walletStatusResponse
	var code int
	err = gout.GET(g.cfg.APIURL + "/ecomm/v2/payments/" + reference + "/details").
		WithContext(ctx).
		SetHeader(g.headers(token)).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return "", fmt.Errorf("wallet status request failed: %w", err)
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("wallet status request returned status %d", code)
	}
	return resp.TransactionInfo.Status, nil
}

// Capture captures a reserved wallet payment.
func (g *HTTPWalletGateway) Capture(ctx context.Context, reference string, amount float64) error {
	token, err := g.fetchToken(ctx)
	if err != nil {
		return err
	}

	var code int
	err = gout.POST(g.cfg.APIURL + "/ecomm/v2/payments/" + reference + "/capture").
		WithContext(ctx).
		SetHeader(g.headers(token)).
		SetJSON(gout.H{
			"merchantInfo": gout.H{"merchantSerialNumber": g.cfg.MerchantSerialNo},
			"transaction":  gout.H{"amount": minorUnits(amount), "transactionText": "Capture " + reference},
		}).
		Code(&code).
		Do()
	if err != nil {
		return fmt.Errorf("wallet capture failed: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("wallet capture returned status %d", code)
	}
	return nil
}

// Refund returns wallet funds against a captured reference.
func (g *HTTPWalletGateway) Refund(ctx context.Context, reference string, amount float64) error {
	token, err := g.fetchToken(ctx)
	if err != nil {
		return err
	}

	var code int
	err = gout.POST(g.cfg.APIURL + "/ecomm/v2/payments/" + reference + "/refund").
		WithContext(ctx).
		SetHeader(g.headers(token)).
		SetJSON(gout.H{
			"merchantInfo": gout.H{"merchantSerialNumber": g.cfg.MerchantSerialNo},
			"transaction":  gout.H{"amount": minorUnits(amount), "transactionText": "Refund " + reference},
		}).
		Code(&code).
		Do()
	if err != nil {
		return fmt.Errorf("wallet refund failed: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("wallet refund returned status %d", code)
	}
	return nil
}
