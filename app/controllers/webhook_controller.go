package controllers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/netpesa/netpesa/internal/pkg/billing"
	"github.com/netpesa/netpesa/internal/pkg/env"
)

// HandleWebhook receives the payment-processor callback. Signature checking
// is configuration, not protocol: it only runs when WEBHOOK_SECRET is set,
// since not every vendor signs. Once past the signature, the handler always
// acknowledges with 200, because application-level ambiguity must not put
// the processor into a retry loop.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	secret := env.GetEnv("WEBHOOK_SECRET", "")
	if secret != "" {
		signature := firstHeaderValue(c, "X-Webhook-Signature", "X-Paystack-Signature", "X-Callback-Signature")
		if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	eventHeader := firstHeaderValue(c, "X-Webhook-Event", "X-Paystack-Event", "X-Callback-Event")
	event := billing.ParsePaymentEvent(payload, eventHeader)

	ctx, cancel := requestContext()
	defer cancel()

	result, err := pc.svc.ProcessWebhook(ctx, event)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Get(k)); v != "" {
			return v
		}
	}
	return ""
}
