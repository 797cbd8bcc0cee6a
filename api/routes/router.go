package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edukamer/edupay-backend/api/controllers"
	webhookcontrollers "github.com/edukamer/edupay-backend/api/controllers/webhooks"
	"github.com/edukamer/edupay-backend/api/middleware"
	"github.com/edukamer/edupay-backend/internal/notifications"
	"github.com/edukamer/edupay-backend/internal/payments"
	"github.com/edukamer/edupay-backend/internal/reconcile"
	"github.com/edukamer/edupay-backend/pkg/config"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

// WebhookEnqueuer hands aggregator callbacks to the reconciliation queue.
type WebhookEnqueuer interface {
	Enqueue(ctx context.Context, event reconcile.WebhookEvent) (string, error)
}

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         controllers.Pinger
	PubSub        controllers.Pinger
	Plans         controllers.PlanService
	Payments      *payments.Service
	Subscriptions controllers.SubscriptionReadService
	Notifications notifications.Service
	Enqueuer      WebhookEnqueuer
}

// NewRouter assembles the API handler tree.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": params.DB,
			"redis":    params.Redis,
			"pubsub":   params.PubSub,
		}))
	})

	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", controllers.PlansList(params.Plans, logg))
	})

	// Aggregator callbacks carry no credentials; CamPay retries on GET first.
	r.Route("/api/v1/payments/webhook", func(r chi.Router) {
		r.Get("/", webhookcontrollers.CamPayWebhook(params.Enqueuer, logg))
		r.Post("/", webhookcontrollers.CamPayWebhook(params.Enqueuer, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/plans/{planID}/payment-link", controllers.PaymentLinkCreate(params.Payments, logg))
			r.Get("/current-plan", controllers.CurrentPlan(params.Subscriptions, logg))
			r.Get("/subscription-history", controllers.SubscriptionHistory(params.Subscriptions, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(params.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(params.Notifications, logg))
		})
	})

	return r
}
