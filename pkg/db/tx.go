package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// WithTx runs fn inside a transaction on conn. Errors returned by fn pass
// through untouched; failures to begin or commit are reported as ErrUnavailable.
func WithTx(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return Unavailable(tx.Error)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return Unavailable(err)
	}
	committed = true
	return nil
}

// Storage wraps a repository error as ErrUnavailable unless it is a version
// conflict, which callers retry.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	return Unavailable(err)
}
