package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/furnishly-backend/api/controllers"
	"github.com/angelmondragon/furnishly-backend/api/middleware"
	"github.com/angelmondragon/furnishly-backend/internal/auth"
	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/internal/orders"
	"github.com/angelmondragon/furnishly-backend/internal/products"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/internal/reviews"
	"github.com/angelmondragon/furnishly-backend/internal/users"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
	"github.com/angelmondragon/furnishly-backend/pkg/redis"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
)

// RateLimitStore counts attempts per key within a window.
type RateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Dependencies carries everything the router wires into handlers. Nil stores
// disable the middleware that needs them.
type Dependencies struct {
	DB    controllers.Pinger
	Redis controllers.Pinger

	Sessions    session.AccessSessionChecker
	RateLimits  RateLimitStore
	Idempotency redis.IdempotencyStore

	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Auth       auth.Service
	Users      users.Service
	Products   products.Service
	Promotions promotions.Service
	Cart       cart.Service
	Orders     orders.Service
	Reviews    reviews.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		tracing.Middleware("http.server"),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginPolicy := middleware.LoginPolicy(cfg.AuthRateLimit)
	registerPolicy := middleware.RegisterPolicy(cfg.AuthRateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(registerPolicy, deps.RateLimits, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimits, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		// catalog reads are public
		r.Group(func(r chi.Router) {
			r.Get("/products", controllers.ListProducts(deps.Products, logg))
			r.Get("/products/{productId}", controllers.GetProduct(deps.Products, logg))
			r.Get("/products/{productId}/reviews", controllers.ListReviews(deps.Reviews, logg))
			r.Get("/promotions/current", controllers.ListCurrentPromotions(deps.Promotions, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.Idempotency(deps.Idempotency, logg))

			r.Post("/products/{productId}/reviews", controllers.CreateReview(deps.Reviews, logg))

			r.Get("/cart", controllers.GetCart(deps.Cart, logg))
			r.Delete("/cart", controllers.ClearCart(deps.Cart, logg))
			r.Post("/cart/items", controllers.AddCartItem(deps.Cart, logg))
			r.Patch("/cart/items/{itemId}", controllers.UpdateCartItem(deps.Cart, logg))
			r.Delete("/cart/items/{itemId}", controllers.RemoveCartItem(deps.Cart, logg))
			r.Post("/cart/coupon", controllers.PreviewCoupon(deps.Cart, logg))

			r.Post("/orders", controllers.PlaceOrder(deps.Orders, logg))
			r.Get("/orders", controllers.ListMyOrders(deps.Orders, logg))
			r.Get("/orders/{orderId}", controllers.GetMyOrder(deps.Orders, logg))
			r.Post("/orders/{orderId}/cancel", controllers.CancelMyOrder(deps.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleSupplier, enums.UserRoleAdmin))
				r.Get("/supplier/products", controllers.ListOwnProducts(deps.Products, logg))
				r.Post("/products", controllers.CreateProduct(deps.Products, logg))
				r.Patch("/products/{productId}", controllers.UpdateProduct(deps.Products, logg))
				r.Delete("/products/{productId}", controllers.DeleteProduct(deps.Products, logg))
			})

			// admin routes stay flat so the idempotency middleware sees full patterns
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

				r.Get("/admin/users", controllers.AdminListUsers(deps.Users, logg))
				r.Patch("/admin/users/{userId}/role", controllers.AdminChangeUserRole(deps.Users, logg))

				r.Get("/admin/promotions", controllers.AdminListPromotions(deps.Promotions, logg))
				r.Post("/admin/promotions", controllers.AdminCreatePromotion(deps.Promotions, logg))
				r.Get("/admin/promotions/{promotionId}", controllers.AdminGetPromotion(deps.Promotions, logg))
				r.Patch("/admin/promotions/{promotionId}", controllers.AdminUpdatePromotion(deps.Promotions, logg))
				r.Delete("/admin/promotions/{promotionId}", controllers.AdminDeletePromotion(deps.Promotions, logg))

				r.Get("/admin/orders", controllers.AdminListOrders(deps.Orders, logg))
				r.Get("/admin/orders/{orderId}", controllers.AdminGetOrder(deps.Orders, logg))
				r.Patch("/admin/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			})
		})
	})

	return r
}
