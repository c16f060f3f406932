package handlers

import (
	"errors"
	"fmt"
	"log"

	"salonpos/internal/models"
	"salonpos/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// TerminalHandler exposes the card terminal state machine over HTTP so the
// register UI can drive discovery, connection and payment collection.
type TerminalHandler struct {
	terminal *services.TerminalService
	validate *validator.Validate
}

// NewTerminalHandler creates a new TerminalHandler.
func NewTerminalHandler(terminal *services.TerminalService) *TerminalHandler {
	return &TerminalHandler{
		terminal: terminal,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the terminal routes with the Fiber app.
func (h *TerminalHandler) RegisterRoutes(router fiber.Router) {
	terminalRoutes := router.Group("/terminal")
	terminalRoutes.Get("/status", h.HandleStatus)
	terminalRoutes.Post("/initialize", h.HandleInitialize)
	terminalRoutes.Post("/discover", h.HandleDiscover)
	terminalRoutes.Post("/connect", h.HandleConnect)
	terminalRoutes.Post("/disconnect", h.HandleDisconnect)
	terminalRoutes.Post("/collect", h.HandleCollect)
	terminalRoutes.Post("/cancel", h.HandleCancel)
}

// HandleStatus reports the machine state and connected device, if any.
func (h *TerminalHandler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"state":  h.terminal.State(),
		"device": h.terminal.ConnectedDevice(),
	})
}

// HandleInitialize moves the machine from Uninitialized to Ready.
func (h *TerminalHandler) HandleInitialize(c *fiber.Ctx) error {
	if err := h.terminal.Initialize(c.Context()); err != nil {
		log.Printf("Terminal initialize failed: %v", err)
		return h.terminalError(c, err)
	}
	return c.JSON(fiber.Map{"state": h.terminal.State()})
}

// HandleDiscover lists reachable readers. An empty list is a valid result.
func (h *TerminalHandler) HandleDiscover(c *fiber.Ctx) error {
	devices, err := h.terminal.Discover(c.Context())
	if err != nil {
		log.Printf("Terminal discovery failed: %v", err)
		return h.terminalError(c, err)
	}
	if devices == nil {
		devices = []models.TerminalDevice{}
	}
	return c.JSON(fiber.Map{"devices": devices})
}

// ConnectRequest represents the request body for connecting to a reader.
type ConnectRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// HandleConnect binds the machine to one discovered reader.
func (h *TerminalHandler) HandleConnect(c *fiber.Ctx) error {
	var req ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing connect request body: %v", err)
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

	if err := h.terminal.Connect(c.Context(), models.TerminalDevice{ID: req.DeviceID}); err != nil {
		log.Printf("Terminal connect to %s failed: %v", req.DeviceID, err)
		return h.terminalError(c, err)
	}
	return c.JSON(fiber.Map{
		"state":  h.terminal.State(),
		"device": h.terminal.ConnectedDevice(),
	})
}

// HandleDisconnect releases the connected reader.
func (h *TerminalHandler) HandleDisconnect(c *fiber.Ctx) error {
	if err := h.terminal.Disconnect(c.Context()); err != nil {
		log.Printf("Terminal disconnect failed: %v", err)
		return h.terminalError(c, err)
	}
	return c.JSON(fiber.Map{"state": h.terminal.State()})
}

// CollectRequest represents the request body for a standalone collection.
type CollectRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,len=3"`
}

// HandleCollect drives a card-present collection outside the checkout flow,
// for example to verify a freshly connected reader with a small charge.
func (h *TerminalHandler) HandleCollect(c *fiber.Ctx) error {
	var req CollectRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing collect request body: %v", err)
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

	intent, err := h.terminal.CollectPayment(c.Context(), req.Amount, req.Currency, nil)
	if err != nil {
		log.Printf("Terminal collect failed: %v", err)
		var paymentErr *models.PaymentError
		if errors.As(err, &paymentErr) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"message": "Payment failed",
				"kind":    string(paymentErr.Kind),
				"error":   paymentErr.Reason,
			})
		}
		return h.terminalError(c, err)
	}

	return c.JSON(fiber.Map{
		"intent_id": intent.ID,
		"status":    intent.Status,
	})
}

// HandleCancel aborts an in-flight payment collection.
func (h *TerminalHandler) HandleCancel(c *fiber.Ctx) error {
	if err := h.terminal.Cancel(c.Context()); err != nil {
		if errors.Is(err, models.ErrNothingToCancel) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": "No payment collection is in flight",
			})
		}
		log.Printf("Terminal cancel failed: %v", err)
		return h.terminalError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Collection cancelled"})
}

// terminalError maps terminal errors onto HTTP statuses.
func (h *TerminalHandler) terminalError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrDeviceBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Card terminal is busy",
			"error":   err.Error(),
		})
	case errors.Is(err, models.ErrDeviceUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": "Card terminal is unavailable",
			"error":   err.Error(),
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Terminal operation failed",
			"error":   err.Error(),
		})
	}
}
