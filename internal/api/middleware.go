package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
	"storefront/internal/util"
)

const principalKey = "principal"

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(raw, wantType string) (service.Principal, error)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// authenticate resolves an optional bearer token. A malformed or expired
// token is rejected even on public routes.
func authenticate(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, detail("Authorization header must contain two space-delimited values"))
			return
		}
		p, err := tokens.Verify(strings.TrimSpace(raw), service.TokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, detail("Given token not valid for any token type"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principal(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

// requireAuth admits authenticated callers only.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := principal(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, detail("Authentication credentials were not provided."))
			return
		}
		c.Next()
	}
}

// requireStaff admits staff callers only.
func requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, detail("Authentication credentials were not provided."))
			return
		}
		if !p.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, detail(service.ErrForbidden.Error()))
			return
		}
		c.Next()
	}
}

// staffOrReadOnly lets anyone read and only staff write.
func staffOrReadOnly() gin.HandlerFunc {
	staff := requireStaff()
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			staff(c)
		}
	}
}
