package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/townhub/rollout-engine/internal/observability"
)

func TestCorrelationMiddlewarePropagatesSuppliedID(t *testing.T) {
	t.Parallel()

	var seen string
	app := fiber.New()
	app.Use(CorrelationMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		seen, _ = observability.CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set(HeaderCorrelationID, "req-1234")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if seen != "req-1234" {
		t.Errorf("context correlation id = %q, want %q", seen, "req-1234")
	}
	if got := resp.Header.Get(HeaderCorrelationID); got != "req-1234" {
		t.Errorf("response header = %q, want %q", got, "req-1234")
	}
}

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(CorrelationMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get(HeaderCorrelationID) == "" {
		t.Error("expected a generated correlation id in the response header")
	}
}
