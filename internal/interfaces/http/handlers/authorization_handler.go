package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/interfaces/http/middleware"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// AuthorizationStore is the part of the record store the HTTP surface uses.
type AuthorizationStore interface {
	FindByToken(ctx context.Context, rc models.RequestContext, token string, tokenType constants.TokenType) (*models.AuthorizationRecord, error)
	Remove(ctx context.Context, rc models.RequestContext, record *models.AuthorizationRecord) error
}

// TokenRequest is the form body of the revocation and lookup endpoints.
type TokenRequest struct {
	Token         string `form:"token" json:"token" binding:"required"`
	TokenTypeHint string `form:"token_type_hint" json:"token_type_hint"`
}

// AuthorizationSummary describes a stored authorization without any token value.
type AuthorizationSummary struct {
	ID                    string     `json:"id"`
	ClientID              string     `json:"client_id"`
	PrincipalName         string     `json:"principal_name"`
	GrantType             string     `json:"grant_type"`
	TenantID              string     `json:"tenant_id"`
	Scopes                []string   `json:"scopes,omitempty"`
	HasAuthorizationCode  bool       `json:"has_authorization_code"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
}

// SummarizeAuthorization strips token values from record.
func SummarizeAuthorization(record *models.AuthorizationRecord) AuthorizationSummary {
	s := AuthorizationSummary{
		ID:                   record.ID,
		ClientID:             record.RegisteredClientID,
		PrincipalName:        record.PrincipalName,
		GrantType:            record.GrantType,
		TenantID:             record.TenantID,
		Scopes:               record.AuthorizedScopes,
		HasAuthorizationCode: record.AuthorizationCode != nil && record.AuthorizationCode.Value != "",
	}
	if record.AccessToken != nil {
		s.AccessTokenExpiresAt = record.AccessToken.ExpiresAt
	}
	if record.RefreshToken != nil {
		s.RefreshTokenExpiresAt = record.RefreshToken.ExpiresAt
	}
	return s
}

// AuthorizationHandler exposes token revocation and an internal lookup endpoint.
type AuthorizationHandler struct {
	store  AuthorizationStore
	logger logger.Logger
}

func NewAuthorizationHandler(store AuthorizationStore, log logger.Logger) *AuthorizationHandler {
	return &AuthorizationHandler{store: store, logger: log.WithComponent("authorization_handler")}
}

// Revoke removes the authorization holding the submitted token. Unknown tokens are
// answered with 200 like known ones, so the endpoint does not reveal which tokens
// exist.
func (h *AuthorizationHandler) Revoke(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		SendError(c, errors.ErrValidation("token is required"))
		return
	}

	ctx := c.Request.Context()
	rc := middleware.RequestContextFrom(c)
	record, err := h.store.FindByToken(ctx, rc, req.Token, constants.ParseTokenType(req.TokenTypeHint))
	if err != nil {
		if errors.IsNotFound(err) {
			c.Status(http.StatusOK)
			return
		}
		SendError(c, err)
		return
	}

	if err := h.store.Remove(ctx, rc, record); err != nil && !errors.IsNotFound(err) {
		SendError(c, err)
		return
	}
	h.logger.Info(ctx, "Authorization revoked", logger.String("authorization_id", record.ID))
	c.Status(http.StatusOK)
}

// Lookup returns a summary of the authorization holding the submitted token.
func (h *AuthorizationHandler) Lookup(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, errors.ErrValidation("token is required"))
		return
	}

	record, err := h.store.FindByToken(c.Request.Context(), middleware.RequestContextFrom(c), req.Token, constants.ParseTokenType(req.TokenTypeHint))
	if err != nil {
		if !isCode(err, constants.ErrCodeNotFound) {
			h.logger.Warn(c.Request.Context(), "Authorization lookup failed", logger.Err(err))
		}
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, SummarizeAuthorization(record))
}
