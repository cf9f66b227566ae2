package controllers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/netpesa/netpesa/internal/pkg/billing"
)

const requestTimeout = 15 * time.Second

// PaymentController exposes the client-facing endpoints: init, claim, status
// and the health probe. The processor webhook lives in webhook_controller.go.
type PaymentController struct {
	svc      *billing.Service
	validate *validator.Validate
}

func NewPaymentController(svc *billing.Service) *PaymentController {
	return &PaymentController{
		svc:      svc,
		validate: validator.New(),
	}
}

type initRequest struct {
	Phone    string      `json:"phone" validate:"required"`
	DeviceID string      `json:"device_id" validate:"required"`
	Amount   interface{} `json:"amount"`
	Plan     string      `json:"plan"`
}

type claimRequest struct {
	Phone         string `json:"phone"`
	DeviceID      string `json:"device_id" validate:"required"`
	TransactionID string `json:"transaction_id"`
	Receipt       string `json:"receipt"`
	IntentID      string `json:"intent_id"`
}

// HandleInit opens a payment intent before the client initiates a payment.
func (pc *PaymentController) HandleInit(c *fiber.Ctx) error {
	var req initRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := pc.validate.Struct(&req); err != nil {
		return badRequest(c, "phone and device_id are required")
	}

	ctx, cancel := requestContext()
	defer cancel()

	intent, err := pc.svc.CreateIntent(ctx, billing.InitInput{
		Phone:    req.Phone,
		DeviceID: req.DeviceID,
		Amount:   billing.NormalizeAmount(req.Amount),
		Plan:     req.Plan,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(billing.InitResult{
		IntentID:  intent.ID,
		ExpiresAt: intent.ExpiresAt,
	})
}

// HandleClaim binds a confirmed payment to the calling device.
func (pc *PaymentController) HandleClaim(c *fiber.Ctx) error {
	var req claimRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := pc.validate.Struct(&req); err != nil {
		return badRequest(c, "device_id is required")
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := pc.svc.Claim(ctx, billing.ClaimInput{
		Phone:         req.Phone,
		DeviceID:      req.DeviceID,
		TransactionID: req.TransactionID,
		Receipt:       req.Receipt,
		IntentID:      req.IntentID,
	})
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleStatus projects subscription state for a (phone, device) pair.
func (pc *PaymentController) HandleStatus(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	result, err := pc.svc.Status(ctx, c.Query("phone"), c.Query("device_id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleHealth reports store reachability.
func (pc *PaymentController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	if err := pc.svc.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// serviceError maps the billing error taxonomy onto HTTP status codes. A
// pending claim is not a failure: it carries the poll hint the client
// contract depends on.
func serviceError(c *fiber.Ctx, err error) error {
	switch billing.KindOf(err) {
	case billing.KindValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case billing.KindAuth:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case billing.KindConflict:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case billing.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case billing.KindPending:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"reason":              err.Error(),
			"retry_after_seconds": billing.RetryAfterOf(err),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
