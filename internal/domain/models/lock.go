package models

import "time"

// SchedulerLock is a row of the cluster lock table held by one node at a time.
type SchedulerLock struct {
	Name        string    `gorm:"primaryKey;size:64"`
	LockedUntil time.Time `gorm:"not null"`
	LockedAt    time.Time `gorm:"not null"`
	LockedBy    string    `gorm:"size:255;not null"`
}

// TableName pins the table name.
func (SchedulerLock) TableName() string {
	return "scheduler_locks"
}
