package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"salonpos/internal/middleware"
	"salonpos/internal/models"
	"salonpos/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CheckoutHandler handles HTTP requests for the sale flow: committing carts,
// reading orders, refunds and receipt reprints.
type CheckoutHandler struct {
	checkout *services.CheckoutService
	delivery *services.DeliveryService
	validate *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, delivery *services.DeliveryService) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		delivery: delivery,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the POS routes with the Fiber app.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	posRoutes := router.Group("/pos")
	posRoutes.Post("/checkout", h.HandleCheckout)
	posRoutes.Get("/orders", h.HandleGetOrders)
	posRoutes.Get("/orders/:id", h.HandleGetOrderByID)
	posRoutes.Post("/orders/:id/refund", h.HandleRefund)
	posRoutes.Get("/orders/:id/receipt.pdf", h.HandleReceiptPDF)
	posRoutes.Post("/orders/:id/receipt", h.HandleReprintReceipt)
}

// RegisterCallbackRoutes registers the wallet provider callback. It lives
// outside the JWT-protected group because the provider calls it directly.
func (h *CheckoutHandler) RegisterCallbackRoutes(router fiber.Router) {
	router.Post("/pos/wallet/callback", h.HandleWalletCallback)
}

// CheckoutRequest represents the request body for committing a sale.
type CheckoutRequest struct {
	Lines          []models.CartLine `json:"lines" validate:"required,min=1,dive"`
	CustomerID     *int64            `json:"customer_id"`
	AppointmentID  *int64            `json:"appointment_id"`
	Method         string            `json:"method" validate:"required,oneof=cash card wallet"`
	IdempotencyKey string            `json:"idempotency_key"`
	CustomerEmail  string            `json:"customer_email" validate:"omitempty,email"`
	FallbackURL    string            `json:"fallback_url"`
}

// HandleCheckout commits the cart as an order, settling the payment first.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing checkout request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	cart := models.NewCart(middleware.EmployeeID(c))
	cart.CustomerID = req.CustomerID
	cart.AppointmentID = req.AppointmentID
	for _, line := range req.Lines {
		if err := cart.AddLine(line); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid cart line",
				"error":   err.Error(),
			})
		}
	}

	result, err := h.checkout.Checkout(c.Context(), middleware.TenantID(c), services.CheckoutRequest{
		Cart:           cart,
		Method:         models.PaymentMethod(req.Method),
		IdempotencyKey: req.IdempotencyKey,
		CustomerEmail:  req.CustomerEmail,
		FallbackURL:    req.FallbackURL,
	})
	if err != nil {
		log.Printf("Checkout failed: %v", err)
		return h.checkoutError(c, err)
	}

	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// checkoutError maps the service error taxonomy onto HTTP statuses.
func (h *CheckoutHandler) checkoutError(c *fiber.Ctx, err error) error {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   validationErr.Error(),
		})
	}

	var paymentErr *models.PaymentError
	if errors.As(err, &paymentErr) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"message": "Payment failed",
			"kind":    string(paymentErr.Kind),
			"error":   paymentErr.Reason,
		})
	}

	if errors.Is(err, models.ErrDeviceBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Card terminal is busy",
			"error":   err.Error(),
		})
	}
	if errors.Is(err, models.ErrDeviceUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": "Card terminal is unavailable",
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Could not complete checkout",
		"error":   err.Error(),
	})
}

// HandleGetOrders retrieves the authenticated tenant's orders.
func (h *CheckoutHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.checkout.GetOrders(middleware.TenantID(c))
	if err != nil {
		log.Printf("Error getting orders: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves one order with its items and payments.
func (h *CheckoutHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, items, payments, err := h.checkout.GetOrderDetails(middleware.TenantID(c), orderID)
	if err != nil {
		log.Printf("Error getting order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve order",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"order":    order,
		"items":    items,
		"payments": payments,
	})
}

// RefundRequest represents the request body for a refund.
type RefundRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Reason string  `json:"reason" validate:"required"`
}

// HandleRefund refunds part or all of an order's payment.
func (h *CheckoutHandler) HandleRefund(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing refund request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	refund, err := h.checkout.Refund(c.Context(), middleware.TenantID(c), orderID, req.Amount, req.Reason)
	if err != nil {
		log.Printf("Error refunding order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return h.checkoutError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Refund recorded successfully",
		"refund":  refund,
	})
}

// HandleReceiptPDF renders the order's receipt as a PDF document.
func (h *CheckoutHandler) HandleReceiptPDF(c *fiber.Ctx) error {
	orderID := c.Params("id")
	pdf, err := h.delivery.RenderPDF(middleware.TenantID(c), orderID)
	if err != nil {
		log.Printf("Error rendering receipt PDF for order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not render receipt",
			"error":   err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="kvittering-%s.pdf"`, orderID))
	return c.Send(pdf)
}

// ReprintRequest represents the request body for a receipt reprint.
type ReprintRequest struct {
	Channels      []string `json:"channels" validate:"required,min=1,dive,oneof=print pdf email"`
	CustomerEmail string   `json:"customer_email" validate:"omitempty,email"`
}

// HandleReprintReceipt re-delivers an order's receipt over the requested
// channels and returns the per-channel report.
func (h *CheckoutHandler) HandleReprintReceipt(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req ReprintRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing reprint request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	channels := make([]models.DeliveryChannel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, models.DeliveryChannel(ch))
	}

	report, err := h.delivery.Deliver(c.Context(), middleware.TenantID(c), orderID, channels, req.CustomerEmail)
	if err != nil {
		log.Printf("Error delivering receipt for order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not deliver receipt",
			"error":   err.Error(),
		})
	}

	return c.JSON(report)
}

// WalletCallbackRequest is the provider's payment status notification.
type WalletCallbackRequest struct {
	Reference     string `json:"orderId" validate:"required"`
	Status        string `json:"transactionStatus" validate:"required"`
	CustomerEmail string `json:"customer_email"`
}

// HandleWalletCallback resolves a pending wallet payment from the provider's
// server-to-server notification.
func (h *CheckoutHandler) HandleWalletCallback(c *fiber.Ctx) error {
	var req WalletCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing wallet callback body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}

	if err := h.checkout.CompleteWalletPayment(c.Context(), req.Reference, req.Status, req.CustomerEmail); err != nil {
		log.Printf("Error completing wallet payment %s: %v", req.Reference, err)
		if strings.Contains(err.Error(), "unknown reference") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Unknown payment reference",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not process wallet callback",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{"message": "Callback processed"})
}
