package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/netpesa/netpesa/app/controllers"
	"github.com/netpesa/netpesa/internal/pkg/env"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

// ApiRouter serves the client-facing endpoints. CORS is open because the
// captive-portal client polls status from a browser context; rate limits are
// shared across replicas through Redis-backed limiter storage.
type ApiRouter struct {
	ctrl  *controllers.PaymentController
	store *kvstore.RedisStore
}

func NewApiRouter(ctrl *controllers.PaymentController, store *kvstore.RedisStore) *ApiRouter {
	return &ApiRouter{ctrl: ctrl, store: store}
}

func (r *ApiRouter) InstallRouter(app *fiber.App) {
	// Liveness probe stays outside the limiter group.
	app.Get("/healthz", r.ctrl.HandleHealth)

	api := app.Group("", cors.New(), limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    r.limiterStorage(),
	}))

	api.Post("/init", r.ctrl.HandleInit)
	api.Post("/claim", r.ctrl.HandleClaim)
	api.Get("/status", r.ctrl.HandleStatus)
}

// limiterStorage derives limiter storage config from the existing cache
// client so both point at the same server. Database 1 keeps limiter keys out
// of the application keyspace.
func (r *ApiRouter) limiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	if r.store != nil && r.store.Client() != nil {
		opts := r.store.Client().Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if opts.Password != "" {
			password = opts.Password
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
