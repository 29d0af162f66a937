package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/checkout"
	"github.com/syedhariswaseem/lazr/internal/flow"
	"github.com/syedhariswaseem/lazr/internal/payment"
)

type Options struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SessionCookie      string
	SecureCookie       bool
	SessionMaxAge      time.Duration
	Currency           string
	WebhookSecret      string
}

type Deps struct {
	Products  ProductRepository
	Carts     *cart.Service
	Checkouts *checkout.Service
	Flow      *flow.Orchestrator
	Gateway   payment.Gateway
	Events    payment.EventHandler
	Log       *slog.Logger
}

func NewRouter(d Deps, opts Options) http.Handler {
	productHandler := NewProductHandler(d.Products)
	cartHandler := NewCartHandler(d.Carts, d.Products)
	checkoutHandler := NewCheckoutHandler(d.Flow, d.Checkouts)
	paymentHandler := NewPaymentHandler(d.Gateway, d.Carts, opts.Currency)
	webhookHandler := NewWebhookHandler(opts.WebhookSecret, d.Events)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestContextMiddleware(d.Log))
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if opts.MaxRequestBodySize > 0 {
		r.Use(BodyLimit(opts.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/stripe", webhookHandler.Stripe)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(SessionMiddleware(opts.SessionCookie, opts.SecureCookie, opts.SessionMaxAge))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Post("/", productHandler.CreateProduct)
			r.Get("/{id}", productHandler.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetCheckout)
			r.Post("/place-order", checkoutHandler.PlaceOrder)
			r.Post("/payment-fields", checkoutHandler.SetPaymentFields)
			r.Post("/submit", checkoutHandler.Submit)
			r.Get("/snapshot", checkoutHandler.GetSnapshot)
			r.Delete("/snapshot", checkoutHandler.ClearSnapshot)
		})

		r.Post("/payment-sessions", paymentHandler.CreateSession)
		r.Post("/checkout-sessions", paymentHandler.CreateCheckoutSession)
		r.Post("/order-details", paymentHandler.OrderDetails)
	})

	return otelhttp.NewHandler(r, "storefront")
}
