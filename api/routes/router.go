package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	subscriptioncontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	subscriptionsvc "github.com/angelmondragon/marketplace-backend/internal/subscriptions"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/paystack"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	gatherer prometheus.Gatherer,
	sessionChecker session.AccessSessionChecker,
	subscriptionsService subscriptionsvc.Service,
	inventoryService inventory.Service,
	paystackClient *paystack.Client,
	paystackWebhookService webhookcontrollers.PaystackWebhookService,
	paystackWebhookGuard webhookcontrollers.PaystackWebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(paystackWebhookService, paystackClient, paystackWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSAllowedOrigins))
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.RequireAnyRole(logg, enums.MemberRoleSeller, enums.MemberRoleAdmin))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/check", subscriptioncontrollers.Check(subscriptionsService, logg))
			r.With(middleware.RequireAnyRole(logg, enums.MemberRoleAdmin)).
				Post("/upgrade", subscriptioncontrollers.Upgrade(subscriptionsService, logg))
		})

		r.Post("/orders/restore-inventory", ordercontrollers.RestoreInventory(inventoryService, logg))
	})

	return r
}
