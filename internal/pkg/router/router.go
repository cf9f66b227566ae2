package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/netpesa/netpesa/app/controllers"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all HTTP surfaces. The webhook router goes first: the
// client API group's middleware applies to routes registered after it, and
// the processor callback must stay outside CORS and rate limiting.
func InstallRouter(app *fiber.App, ctrl *controllers.PaymentController, store *kvstore.RedisStore) {
	setup(app, NewWebhookRouter(ctrl), NewApiRouter(ctrl, store))
}

func setup(app *fiber.App, routers ...Router) {
	for _, r := range routers {
		r.InstallRouter(app)
	}
}
