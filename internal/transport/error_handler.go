package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/townhub/rollout-engine/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler turns unhandled route errors into JSON responses. Client errors
// log at warn; everything else is a server fault and logs at error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		contextLogger := observability.WithContextLogger(logger, c.UserContext())
		log := contextLogger.Error
		if code < fiber.StatusInternalServerError {
			log = contextLogger.Warn
		}
		log("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
