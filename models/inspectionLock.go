package models

import (
	"context"
	"fmt"

	"github.com/habitaflow/rentals_backend/config"
	"gorm.io/gorm"
)

// AcquireInspectionLock serializes mutations per inspection across instances
// using MySQL advisory locks. Unrelated inspections stay independent; there
// is no global lock.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// connection that will run the mutation transaction.
func AcquireInspectionLock(conn *gorm.DB, inspectionId int) error {
	lockName := fmt.Sprintf("inspection:%d", inspectionId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire lock for inspection_id=%d", inspectionId)
	}
	return nil
}

func ReleaseInspectionLock(conn *gorm.DB, inspectionId int) {
	lockName := fmt.Sprintf("inspection:%d", inspectionId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// WithInspectionLock pins one connection, takes the advisory lock on it, runs
// fn in a transaction on that same connection and releases the lock only after
// the transaction has committed or rolled back. Releasing inside the
// transaction closure would drop the lock before COMMIT and let the next
// holder read a pre-commit snapshot.
func WithInspectionLock(ctx context.Context, inspectionId int, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireInspectionLock(conn, inspectionId); err != nil {
			return err
		}
		defer ReleaseInspectionLock(conn, inspectionId)
		return conn.Transaction(fn)
	})
}
