package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/netpesa/netpesa/app/controllers"
)

// WebhookRouter serves the processor callback at the root path. It is
// deliberately outside the rate-limited group: the processor's retry policy
// is not ours to throttle.
type WebhookRouter struct {
	ctrl *controllers.PaymentController
}

func NewWebhookRouter(ctrl *controllers.PaymentController) *WebhookRouter {
	return &WebhookRouter{ctrl: ctrl}
}

func (r *WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/", r.ctrl.HandleWebhook)
}
