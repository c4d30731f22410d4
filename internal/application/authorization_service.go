package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/repository"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

var tracer = otel.Tracer("github.com/turtacn/authstore/internal/application")

const defaultPurgeBatchSize = 500

// BatchResult reports the outcome of a best-effort batch operation.
type BatchResult struct {
	Succeeded int
	// FailedIDs holds the ID, or the natural key when no ID is known, of every record
	// that could not be processed.
	FailedIDs []string
}

// AuthorizationService is the authorization record store. Token values are
// encrypted before they reach the repository and are looked up by their digest;
// every read is filtered through the client directory so that records of clients
// the requesting tenant cannot access are reported as not found.
// AuthorizationService 是授权记录存储。令牌值在进入存储库前加密并通过摘要查找；
// 每次读取都会经过客户端目录过滤，请求租户无法访问的客户端记录一律视为不存在。
type AuthorizationService struct {
	repo     repository.AuthorizationRepository
	clients  repository.ClientDirectory
	cipher   service.TokenCipher
	hasher   service.TokenHasher
	pipeline *CryptoPipeline
	events   service.EventPublisher
	metrics  service.Metrics
	cfg      config.StoreConfig
	now      func() time.Time
	logger   logger.Logger
}

// NewAuthorizationService creates the record store.
func NewAuthorizationService(
	repo repository.AuthorizationRepository,
	clients repository.ClientDirectory,
	cipher service.TokenCipher,
	hasher service.TokenHasher,
	pipeline *CryptoPipeline,
	events service.EventPublisher,
	metrics service.Metrics,
	cfg config.StoreConfig,
	log logger.Logger,
) *AuthorizationService {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = constants.DefaultSaveTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = constants.DefaultReadTimeout
	}
	return &AuthorizationService{
		repo:     repo,
		clients:  clients,
		cipher:   cipher,
		hasher:   hasher,
		pipeline: pipeline,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.WithComponent("authorization_service"),
	}
}

// WithClock replaces the clock used for expiry housekeeping.
func (s *AuthorizationService) WithClock(now func() time.Time) *AuthorizationService {
	s.now = now
	return s
}

// Save merges record into the stored record with the same (client, principal,
// grant type) or inserts it, and returns the ID of the stored record. Non-empty
// incoming fields replace stored ones; empty fields keep them. A non-empty state is
// mirrored into rc.Cookies after the write succeeded.
func (s *AuthorizationService) Save(ctx context.Context, rc models.RequestContext, record *models.AuthorizationRecord) (id string, err error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.Save")
	start := time.Now()
	defer func() { s.finish(ctx, span, "save", start, err, logger.String("authorization_id", id)) }()

	tenantID, err := validateForWrite(rc, record)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("grant_type", record.GrantType), attribute.String("tenant_id", tenantID))

	if err = s.requireAccessible(ctx, record.RegisteredClientID, tenantID); err != nil {
		return "", err
	}

	entity, err := s.toEntity(ctx, record, tenantID)
	if err != nil {
		return "", err
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.cfg.SaveTimeout)
	defer cancel()
	saved, err := s.repo.Save(saveCtx, entity)
	if err != nil {
		return "", err
	}

	if record.State != "" && rc.Cookies != nil {
		rc.Cookies.WriteStateCookie(record.State)
	}
	return saved.ID, nil
}

// Remove deletes the record identified by the natural key of record. Removing a
// record that does not exist is not an error.
func (s *AuthorizationService) Remove(ctx context.Context, rc models.RequestContext, record *models.AuthorizationRecord) (err error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.Remove")
	start := time.Now()
	defer func() { s.finish(ctx, span, "remove", start, err) }()

	if err = requireTenant(rc); err != nil {
		return err
	}
	tenantID, err := validateForWrite(rc, record)
	if err != nil {
		return err
	}
	if err = s.requireAccessible(ctx, record.RegisteredClientID, tenantID); err != nil {
		return err
	}

	removeCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	id, err := s.repo.DeleteByNaturalKey(removeCtx, record.NaturalKey())
	if err != nil {
		return err
	}
	if id != "" {
		s.publish(ctx, models.LifecycleEvent{
			Type:     constants.EventAuthorizationRemoved,
			TenantID: tenantID,
			ClientID: record.RegisteredClientID,
			RecordID: id,
		})
	}
	return nil
}

// FindByID returns the record with id.
func (s *AuthorizationService) FindByID(ctx context.Context, rc models.RequestContext, id string) (record *models.AuthorizationRecord, err error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.FindByID")
	start := time.Now()
	defer func() { s.finish(ctx, span, "find_by_id", start, err, logger.String("authorization_id", id)) }()

	if id == "" {
		return nil, errors.ErrValidation("id is required")
	}
	if err = requireTenant(rc); err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	entity, err := s.repo.FindByID(readCtx, id)
	if err != nil {
		return nil, err
	}
	return s.readable(ctx, rc, entity)
}

// FindByToken returns the record holding token. Access, refresh and code tokens are
// matched by digest, state by value. TokenTypeUnspecified tries every column.
func (s *AuthorizationService) FindByToken(ctx context.Context, rc models.RequestContext, token string, tokenType constants.TokenType) (record *models.AuthorizationRecord, err error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.FindByToken",
		trace.WithAttributes(attribute.String("token_type", string(tokenType))))
	start := time.Now()
	var hashPrefix string
	defer func() {
		s.finish(ctx, span, "find_by_token", start, err,
			logger.String("token_type", string(tokenType)),
			logger.String("token_hash_prefix", hashPrefix),
		)
	}()

	if token == "" {
		return nil, errors.ErrValidation("token is required")
	}
	if err = requireTenant(rc); err != nil {
		return nil, err
	}

	lookup := repository.TokenLookup{Type: tokenType}
	switch tokenType {
	case constants.TokenTypeState:
		lookup.Value = token
	case constants.TokenTypeCode, constants.TokenTypeAccess, constants.TokenTypeRefresh:
		lookup.Hash = s.hasher.Hash(token)
	case constants.TokenTypeUnspecified:
		lookup.Value = token
		lookup.Hash = s.hasher.Hash(token)
	default:
		return nil, errors.ErrValidation(fmt.Sprintf("unsupported token type %q", tokenType))
	}
	hashPrefix = prefix(lookup.Hash)

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	entity, err := s.repo.FindByToken(readCtx, lookup)
	if err != nil {
		return nil, err
	}
	return s.readable(ctx, rc, entity)
}

// SaveAll saves every record and continues past failures.
func (s *AuthorizationService) SaveAll(ctx context.Context, rc models.RequestContext, records []*models.AuthorizationRecord) BatchResult {
	var result BatchResult
	for _, record := range records {
		if _, err := s.Save(ctx, rc, record); err != nil {
			result.FailedIDs = append(result.FailedIDs, batchID(record))
			continue
		}
		result.Succeeded++
	}
	return result
}

// RemoveAll removes every record and continues past failures.
func (s *AuthorizationService) RemoveAll(ctx context.Context, rc models.RequestContext, records []*models.AuthorizationRecord) BatchResult {
	var result BatchResult
	for _, record := range records {
		if err := s.Remove(ctx, rc, record); err != nil {
			result.FailedIDs = append(result.FailedIDs, batchID(record))
			continue
		}
		result.Succeeded++
	}
	return result
}

// PurgeExpired deletes records whose every token expired, in batches of batchSize,
// and returns how many were removed.
func (s *AuthorizationService) PurgeExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultPurgeBatchSize
	}
	cutoff := s.now().UTC()
	total := 0
	for {
		ids, err := s.repo.DeleteExpired(ctx, cutoff, batchSize)
		if err != nil {
			s.logger.Error(ctx, "Failed to purge expired authorizations", err, logger.Int("purged", total))
			return total, err
		}
		total += len(ids)
		if len(ids) < batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info(ctx, "Purged expired authorizations", logger.Int("count", total))
		s.publish(ctx, models.LifecycleEvent{Type: constants.EventAuthorizationsExpired, Count: total})
	}
	return total, nil
}

// readable applies tenant isolation to entity and decrypts it. rc.TenantID has been
// checked by the caller.
func (s *AuthorizationService) readable(ctx context.Context, rc models.RequestContext, entity *models.AuthorizationEntity) (*models.AuthorizationRecord, error) {
	if entity.TenantID != rc.TenantID {
		return nil, errors.ErrNotFound("authorization not found")
	}
	if err := s.requireAccessible(ctx, entity.RegisteredClientID, rc.TenantID); err != nil {
		return nil, err
	}
	return s.toRecord(ctx, entity)
}

func (s *AuthorizationService) requireAccessible(ctx context.Context, clientID, tenantID string) error {
	ok, err := s.clients.IsAccessible(ctx, clientID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrNotFound("authorization not found")
	}
	return nil
}

func (s *AuthorizationService) publish(ctx context.Context, event models.LifecycleEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn(ctx, "Failed to publish lifecycle event",
			logger.String("event_type", string(event.Type)),
			logger.Err(err),
		)
	}
}

// finish closes the span, records the operation and logs unexpected failures once.
func (s *AuthorizationService) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error, fields ...logger.Field) {
	code := ""
	if err != nil {
		code = string(errors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		if !errors.IsNotFound(err) && !errors.IsValidation(err) {
			s.logger.Error(ctx, "Authorization store operation failed", err,
				append(fields, logger.String("operation", operation), logger.String("error_code", code))...)
		}
	}
	span.End()
	s.metrics.RecordStoreOperation(operation, code, time.Since(start))
}

// requireTenant rejects reads and deletes that do not name the requesting tenant.
func requireTenant(rc models.RequestContext) error {
	if rc.TenantID == "" {
		return errors.ErrValidation("tenant id is required")
	}
	return nil
}

func validateForWrite(rc models.RequestContext, record *models.AuthorizationRecord) (string, error) {
	if record == nil {
		return "", errors.ErrValidation("record is required")
	}
	switch {
	case record.RegisteredClientID == "":
		return "", errors.ErrValidation("registered client id is required")
	case record.PrincipalName == "":
		return "", errors.ErrValidation("principal name is required")
	case record.GrantType == "":
		return "", errors.ErrValidation("grant type is required")
	}

	tenantID := record.TenantID
	if tenantID == "" {
		tenantID = rc.TenantID
	}
	if tenantID == "" {
		return "", errors.ErrValidation("tenant id is required")
	}
	if rc.TenantID != "" && rc.TenantID != tenantID {
		return "", errors.ErrValidation("record tenant does not match the request tenant")
	}
	return tenantID, nil
}

func batchID(record *models.AuthorizationRecord) string {
	if record == nil {
		return ""
	}
	if record.ID != "" {
		return record.ID
	}
	return fmt.Sprintf("%s/%s/%s", record.RegisteredClientID, record.PrincipalName, record.GrantType)
}

func prefix(digest string) string {
	if len(digest) <= 8 {
		return digest
	}
	return digest[:8]
}
