// Package repo holds the GORM plumbing shared by the domain repositories.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base binds a connection (or an open transaction) to a repository.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx. A nil ctx returns it unscoped.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Locked is DB with SELECT ... FOR UPDATE. The lock only holds inside a
// transaction; SQLite ignores the clause and serialises writers instead.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// FindByID loads one row of T by primary key. Missing rows return
// gorm.ErrRecordNotFound.
func FindByID[T any](ctx context.Context, b Base, id uuid.UUID) (*T, error) {
	return first[T](b.DB(ctx), id)
}

// LockByID is FindByID under a row lock.
func LockByID[T any](ctx context.Context, b Base, id uuid.UUID) (*T, error) {
	return first[T](b.Locked(ctx), id)
}

func first[T any](db *gorm.DB, id uuid.UUID) (*T, error) {
	var row T
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
