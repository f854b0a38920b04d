package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/storage/sqlite"
	"github.com/claimlens/backend/internal/verify"
	"github.com/claimlens/backend/pkg/logger"
)

type VerifyHandler struct {
	engine   *verify.Engine
	storage  *sqlite.Client
	defaults verify.Options
}

// NewVerifyHandler builds the HTTP verification surface. defaults carries the
// operator-configured pipeline gates; per-request options override them.
func NewVerifyHandler(engine *verify.Engine, storage *sqlite.Client, defaults verify.Options) *VerifyHandler {
	return &VerifyHandler{
		engine:   engine,
		storage:  storage,
		defaults: defaults,
	}
}

type verifyRequest struct {
	Claim   string `json:"claim"`
	UserID  string `json:"user_id"`
	Format  string `json:"format"`
	Options struct {
		Enhance        *bool `json:"enhance"`
		ExternalSearch *bool `json:"external_search"`
		TopK           int   `json:"top_k"`
	} `json:"options"`
}

func (r *verifyRequest) toOptions(defaults verify.Options) verify.Options {
	opts := defaults
	opts.UserID = r.UserID
	if r.Options.Enhance != nil {
		opts.Enhance = *r.Options.Enhance
	}
	if r.Options.ExternalSearch != nil {
		opts.ExternalSearch = *r.Options.ExternalSearch
	}
	if r.Options.TopK > 0 {
		opts.TopK = r.Options.TopK
	}
	return opts
}

func (h *VerifyHandler) HandleVerify(c *fiber.Ctx) error {
	var req verifyRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Claim == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Claim is required",
		})
	}

	result, err := h.engine.Verify(c.Context(), req.Claim, req.toOptions(h.defaults))
	if err != nil {
		if errors.Is(err, verify.ErrVerificationUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Verification is temporarily unavailable",
			})
		}
		logger.Error("Failed to verify claim", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify claim",
		})
	}

	record := verify.Format(result)

	format := req.Format
	if q := c.Query("format"); q != "" {
		format = q
	}
	switch format {
	case "text":
		c.Type("txt", "utf-8")
		return c.SendString(verify.RenderText(record))
	case "compact":
		c.Type("txt", "utf-8")
		return c.SendString(verify.RenderCompact(record))
	default:
		return c.JSON(record)
	}
}

func (h *VerifyHandler) GetHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, err := h.storage.GetHistory(userID, limit)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *VerifyHandler) GetVerification(c *fiber.Ctx) error {
	id := c.Params("id")

	record, err := h.storage.GetVerification(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Verification not found",
		})
	}

	return c.JSON(record)
}
