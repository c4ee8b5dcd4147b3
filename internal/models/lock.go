package models

// AppLock is a lease row used to elect one instance for background work
// (rate sampling, reconciliation) when several instances share a database.
type AppLock struct {
	LockName   string `gorm:"primaryKey;size:255"`
	InstanceID string `gorm:"size:255;not null"`
	AcquiredAt int64  `gorm:"not null;index"`
	ExpiresAt  int64  `gorm:"not null;index"`
}

func (AppLock) TableName() string {
	return "app_locks"
}
