package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/townhub/rollout-engine/internal/observability"
)

const HeaderCorrelationID = "X-Correlation-Id"

// CorrelationMiddleware accepts a caller-supplied correlation id or generates
// one, stores it on the request context, and echoes it back in the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(HeaderCorrelationID))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(HeaderCorrelationID, correlationID)
		return c.Next()
	}
}
