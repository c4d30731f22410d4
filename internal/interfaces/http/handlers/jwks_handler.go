package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"

	"github.com/turtacn/authstore/internal/application"
	"github.com/turtacn/authstore/pkg/logger"
)

// KeySetProvider answers key discovery queries over the published signing keys.
type KeySetProvider interface {
	PublicKeySet(ctx context.Context) (jose.JSONWebKeySet, error)
	SelectKeys(ctx context.Context, m application.KeyMatcher) ([]jose.JSONWebKey, error)
}

// JWKSHandler serves the public signing keys as a JWK set.
type JWKSHandler struct {
	keys   KeySetProvider
	logger logger.Logger
}

func NewJWKSHandler(keys KeySetProvider, log logger.Logger) *JWKSHandler {
	return &JWKSHandler{keys: keys, logger: log.WithComponent("jwks_handler")}
}

// GetJWKS returns every active and deprecated key. The optional kid and alg query
// parameters narrow the set.
func (h *JWKSHandler) GetJWKS(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		set jose.JSONWebKeySet
		err error
	)
	kid, alg := c.Query("kid"), c.Query("alg")
	if kid == "" && alg == "" {
		set, err = h.keys.PublicKeySet(ctx)
	} else {
		set.Keys, err = h.keys.SelectKeys(ctx, application.KeyMatcher{KeyID: kid, Algorithm: alg, Use: "sig"})
	}
	if err != nil {
		h.logger.Error(ctx, "Failed to load signing keys", err)
		SendError(c, err)
		return
	}
	if set.Keys == nil {
		set.Keys = []jose.JSONWebKey{}
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, set)
}
