package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/service"
	"storefront/internal/store"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the domain services a process exposes. Routes are registered
// only for the non-nil ones.
type Services struct {
	Auth       *service.AuthService
	Catalog    *service.CatalogService
	Basket     *service.BasketService
	Checkouts  *service.CheckoutService
	Reconciler *service.PaymentReconciler
	Content    *service.ContentService
	Users      *service.UserService
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	tokens TokenVerifier
	cookie CookieConfig
	checks map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, tokens TokenVerifier, cookie CookieConfig, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		tokens: tokens,
		cookie: cookie,
		checks: checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authenticate(h.tokens))

	if h.svc.Auth != nil {
		h.authRoutes(v1.Group("/auth"))
	}
	if h.svc.Catalog != nil {
		h.catalogRoutes(v1)
	}
	if h.svc.Basket != nil {
		h.basketRoutes(v1.Group("/me/basket-items", requireAuth()))
	}
	if h.svc.Checkouts != nil {
		h.checkoutRoutes(v1.Group("/checkouts", requireAuth()))
	}
	if h.svc.Reconciler != nil {
		v1.POST("/payments/yookassa/notifications", h.paymentNotification)
	}
	if h.svc.Content != nil {
		h.contentRoutes(v1)
	}
	if h.svc.Users != nil {
		h.userRoutes(v1)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports 503 if any is down.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"deps":   deps,
		"time":   time.Now().Unix(),
	})
}

// listOptions reads the search and ordering query parameters.
func listOptions(c *gin.Context) store.ListOptions {
	return store.ListOptions{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(c *gin.Context, key string) (*int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{key: []string{"Enter a whole number."}})
		return nil, false
	}
	return &v, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, key string) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{key: []string{"Enter a valid boolean."}})
		return nil, false
	}
	return &v, true
}
