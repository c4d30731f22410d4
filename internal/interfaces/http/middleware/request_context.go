package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/pkg/constants"
)

const (
	// HeaderTenantID carries the tenant a request is made on behalf of.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderForwardedProto carries the scheme seen by the edge proxy.
	HeaderForwardedProto = "X-Forwarded-Proto"

	contextKeyRequestContext = "request_context"
)

// StateCookieWriter mirrors an authorization state into a cookie on the gin response.
type StateCookieWriter struct {
	c      *gin.Context
	name   string
	maxAge time.Duration
	secure bool
}

var _ models.StateCookieWriter = (*StateCookieWriter)(nil)

// NewStateCookieWriter creates a writer for the response of c.
func NewStateCookieWriter(c *gin.Context, cfg config.StoreConfig) *StateCookieWriter {
	name := cfg.StateCookieName
	if name == "" {
		name = constants.DefaultStateCookieName
	}
	maxAge := cfg.StateCookieMaxAge
	if maxAge <= 0 {
		maxAge = constants.DefaultStateCookieMaxAge
	}
	return &StateCookieWriter{c: c, name: name, maxAge: maxAge, secure: cfg.StateCookieSecure}
}

func (w *StateCookieWriter) WriteStateCookie(state string) {
	w.c.SetSameSite(http.SameSiteLaxMode)
	w.c.SetCookie(w.name, state, int(w.maxAge.Seconds()), "/", "", w.secure, true)
}

// RequestContextMiddleware derives the models.RequestContext of every request from
// its tenant header, host and scheme, and puts the tenant into the request context
// for logging.
func RequestContextMiddleware(store config.StoreConfig, signing config.SigningConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme := c.GetHeader(HeaderForwardedProto)
		if scheme == "" {
			scheme = signing.IssuerScheme
		}

		rc := models.RequestContext{
			TenantID: c.GetHeader(HeaderTenantID),
			Host:     c.Request.Host,
			Scheme:   scheme,
			Cookies:  NewStateCookieWriter(c, store),
		}
		c.Set(contextKeyRequestContext, rc)
		if rc.TenantID != "" {
			ctx := context.WithValue(c.Request.Context(), constants.ContextKeyTenantID, rc.TenantID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequestContextFrom returns the request context set by RequestContextMiddleware, or
// one built from the host alone when the middleware did not run.
func RequestContextFrom(c *gin.Context) models.RequestContext {
	if v, ok := c.Get(contextKeyRequestContext); ok {
		if rc, ok := v.(models.RequestContext); ok {
			return rc
		}
	}
	return models.RequestContext{Host: c.Request.Host}
}
