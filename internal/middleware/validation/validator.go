package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Claims are natural language, so filtering is deliberately light: length
// bounds and markup injection only. Persistence is fully parameterized
// downstream.
var markupPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=)`)

type Config struct {
	MaxClaimLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxClaimLength == 0 {
		cfg.MaxClaimLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !contentTypeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if strings.Contains(c.Path(), "/api/v1/verify") && c.Method() == fiber.MethodPost {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			claim, ok := req["claim"].(string)
			if !ok || strings.TrimSpace(claim) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Claim is required and must be a string",
				})
			}

			if len(claim) > cfg.MaxClaimLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Claim exceeds maximum length",
				})
			}

			if markupPattern.MatchString(claim) {
				cfg.Logger.Warn("Markup injection attempt in claim",
					zap.String("ip", c.IP()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid claim content",
				})
			}
		}

		return c.Next()
	}
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}
