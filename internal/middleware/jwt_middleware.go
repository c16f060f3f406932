package middleware

import (
	"log"
	"strings"

	"salonpos/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired is a Fiber middleware to check for a valid JWT token. Every
// POS route is tenant-scoped, so the tenant id from the claims is stored in
// the request context for handlers to read.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		tokenString := parts[1]

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			log.Printf("JWT validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		// Store claims in Fiber context for subsequent handlers
		c.Locals("tenant_id", claims["tenant_id"])
		c.Locals("employee_id", claims["employee_id"])

		// Continue to the next handler
		return c.Next()
	}
}

// TenantID reads the authenticated tenant from the request context.
func TenantID(c *fiber.Ctx) string {
	if id, ok := c.Locals("tenant_id").(string); ok {
		return id
	}
	return ""
}

// EmployeeID reads the authenticated employee from the request context. JWT
// numeric claims decode as float64.
func EmployeeID(c *fiber.Ctx) int64 {
	switch v := c.Locals("employee_id").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
