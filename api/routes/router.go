package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/groceryhub-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/groceryhub-backend/api/controllers/orders"
	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/web"
	"github.com/angelmondragon/groceryhub-backend/internal/auth"
	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	"github.com/angelmondragon/groceryhub-backend/internal/documents"
	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/internal/whatsapp"
	"github.com/angelmondragon/groceryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/groceryhub-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (*session.Rotation, error)
	Revoke(context.Context, string) error
}

// redisStore is the slice of the redis client used by rate limiting,
// idempotency and readiness.
type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Dependencies carries everything the HTTP surface needs. Metrics and
// MetricsHandler are optional.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          redisStore
	Sessions       sessionManager
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Auth         auth.Service
	Categories   categories.Service
	Products     product.Service
	Customers    customers.Service
	Orders       orders.Service
	PriceUpdates priceupdates.Service
	WhatsApp     whatsapp.Service
	Documents    documents.Service
	Web          *web.Handler
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config required")
	case d.Logger == nil:
		return fmt.Errorf("logger required")
	case d.Redis == nil:
		return fmt.Errorf("redis required")
	case d.Sessions == nil:
		return fmt.Errorf("session manager required")
	case d.Auth == nil, d.Categories == nil, d.Products == nil, d.Customers == nil,
		d.Orders == nil, d.PriceUpdates == nil, d.WhatsApp == nil, d.Documents == nil:
		return fmt.Errorf("all domain services are required")
	case d.Web == nil:
		return fmt.Errorf("web handler required")
	}
	return nil
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
		deps.HTTPMetrics.Middleware,
	)
	r.NotFound(responses.NotFound)
	r.MethodNotAllowed(responses.MethodNotAllowed)

	loginLimit := middleware.RateLimit(middleware.LoginRateLimitPolicy(cfg.AuthRateLimit), deps.Redis, logg)
	orderLimit := middleware.RateLimit(middleware.OrderRateLimitPolicy(cfg.OrderRateLimit), deps.Redis, logg)
	orderOnce := middleware.Idempotency(middleware.OrderIdempotency, deps.Redis, logg)
	idempotent := middleware.Idempotency(middleware.OptionalIdempotency, deps.Redis, logg)
	authenticated := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	backOffice := middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleStaff)
	adminOnly := middleware.RequireRole(logg, enums.UserRoleAdmin)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/order", func(r chi.Router) {
		r.Get("/", deps.Web.Form)
		r.With(orderLimit).Post("/", deps.Web.Submit)
		r.Get("/{orderNumber}", deps.Web.Confirmation)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Sessions, cfg.JWT, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Sessions, cfg.JWT, logg))
			r.With(authenticated).Get("/me", controllers.AuthMe(deps.Auth, logg))
		})

		// Public catalog and ordering.
		r.Get("/categories", controllers.CategoryList(deps.Categories, logg))
		r.Get("/categories/tree", controllers.CategoryTree(deps.Categories, logg))
		r.Get("/categories/{categoryId}", controllers.CategoryDetail(deps.Categories, logg))
		r.Get("/products", controllers.ProductList(deps.Products, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))
		r.Get("/price-list/pdf", controllers.PriceListPDF(deps.Documents, logg))
		r.With(orderLimit, orderOnce).Post("/orders", ordercontrollers.Place(deps.Orders, logg))
		r.Get("/orders/number/{orderNumber}", ordercontrollers.DetailByNumber(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticated, backOffice)

			r.Post("/categories", controllers.CategoryCreate(deps.Categories, logg))
			r.Put("/categories/{categoryId}", controllers.CategoryUpdate(deps.Categories, logg))
			r.With(adminOnly).Delete("/categories/{categoryId}", controllers.CategoryDelete(deps.Categories, logg))

			r.Post("/products", controllers.ProductCreate(deps.Products, logg))
			r.Put("/products/{productId}", controllers.ProductUpdate(deps.Products, logg))
			r.With(adminOnly).Delete("/products/{productId}", controllers.ProductDelete(deps.Products, logg))
			r.Post("/products/{productId}/stock", controllers.ProductAdjustStock(deps.Products, logg))
			r.Post("/products/{productId}/image", controllers.ProductUploadImage(deps.Products, cfg.Media.MaxUploadBytes(), logg))
			r.Get("/products/{productId}/price-history", controllers.ProductPriceHistory(deps.Products, deps.PriceUpdates, logg))

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", controllers.CustomerList(deps.Customers, logg))
				r.Post("/", controllers.CustomerCreate(deps.Customers, logg))
				r.Get("/{customerId}", controllers.CustomerDetail(deps.Customers, logg))
				r.Put("/{customerId}", controllers.CustomerUpdate(deps.Customers, logg))
				r.Delete("/{customerId}", controllers.CustomerDelete(deps.Customers, logg))
				r.Get("/{customerId}/orders", controllers.CustomerOrders(deps.Customers, logg))
			})

			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			r.With(idempotent).Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Get("/orders/{orderId}/invoice", ordercontrollers.Invoice(deps.Documents, logg))

			r.Get("/price-updates", controllers.PriceUpdateHistory(deps.PriceUpdates, logg))
			r.With(adminOnly, idempotent).Post("/price-updates/bulk", controllers.PriceUpdateBulk(deps.PriceUpdates, logg))

			r.Route("/whatsapp", func(r chi.Router) {
				r.With(idempotent).Post("/send", controllers.WhatsAppSend(deps.WhatsApp, logg))
				r.With(idempotent).Post("/broadcast", controllers.WhatsAppBroadcast(deps.WhatsApp, logg))
				r.With(idempotent).Post("/price-list", controllers.WhatsAppPriceList(deps.WhatsApp, logg))
				r.Get("/messages", controllers.WhatsAppMessageList(deps.WhatsApp, logg))
				r.Get("/messages/{messageId}", controllers.WhatsAppMessageDetail(deps.WhatsApp, logg))
				r.Post("/messages/{messageId}/retry", controllers.WhatsAppMessageRetry(deps.WhatsApp, logg))
			})
		})
	})

	return r, nil
}
