package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/authstore/internal/domain/models"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/logger"
)

// LockRepository implements service.LockProvider on the scheduler_locks table. A lock
// is held while locked_until lies in the future; acquisition either inserts the row or
// takes over a row whose hold has lapsed.
type LockRepository struct {
	conn   *DBConnection
	owner  string
	now    func() time.Time
	logger logger.Logger
}

var _ service.LockProvider = (*LockRepository)(nil)

// NewLockRepository creates a lock provider identifying itself as owner.
func NewLockRepository(conn *DBConnection, owner string, now func() time.Time, log logger.Logger) *LockRepository {
	if now == nil {
		now = time.Now
	}
	return &LockRepository{conn: conn, owner: owner, now: now, logger: log.WithComponent("lock_repository")}
}

// TryLock acquires name for at most hold.Max without waiting.
func (r *LockRepository) TryLock(ctx context.Context, name string, hold service.LockHold) (bool, error) {
	now := r.now().UTC()
	until := now.Add(hold.Max)

	res := r.conn.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SchedulerLock{Name: name, LockedUntil: until, LockedAt: now, LockedBy: r.owner})
	if res.Error != nil {
		return false, classifyError(ctx, res.Error, "failed to insert lock")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = r.conn.DB().WithContext(ctx).
		Model(&models.SchedulerLock{}).
		Where("name = ? AND locked_until <= ?", name, now).
		Updates(map[string]interface{}{
			"locked_until": until,
			"locked_at":    now,
			"locked_by":    r.owner,
		})
	if res.Error != nil {
		return false, classifyError(ctx, res.Error, "failed to take over lock")
	}
	return res.RowsAffected == 1, nil
}

// Unlock releases name. The lock stays held until hold.Min has passed since it was taken.
func (r *LockRepository) Unlock(ctx context.Context, name string, hold service.LockHold) error {
	var lock models.SchedulerLock
	err := r.conn.DB().WithContext(ctx).
		Where("name = ? AND locked_by = ?", name, r.owner).
		Take(&lock).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return classifyError(ctx, err, "failed to read lock")
	}

	now := r.now().UTC()
	until := lock.LockedAt.UTC().Add(hold.Min)
	if until.Before(now) {
		until = now
	}

	err = r.conn.DB().WithContext(ctx).
		Model(&models.SchedulerLock{}).
		Where("name = ? AND locked_by = ?", name, r.owner).
		Update("locked_until", until).Error
	if err != nil {
		return classifyError(ctx, err, "failed to release lock")
	}
	return nil
}
