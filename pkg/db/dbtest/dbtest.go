// Package dbtest opens isolated SQLite stores carrying the workflow schema.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	"github.com/loomline/erp-backend/pkg/migrate"
)

// Open returns a client over a fresh in-memory database. The pool holds a
// single connection, so concurrent transactions serialize like row locks.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := "file:wf_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = migrate.ApplySQLite(context.Background(), sqlDB)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db.Wrap(conn)
}

// SeedOrder inserts an order of 100 units with one pending stage per name,
// in the given sequence.
func SeedOrder(t testing.TB, client *db.Client, names ...enums.StageName) (models.ProductionOrder, []models.ProductionStage) {
	t.Helper()

	order := models.ProductionOrder{
		ID:             uuid.New(),
		OrderNumber:    "PO-" + uuid.NewString()[:8],
		ProductRef:     "SKU-TEE-001",
		TargetQuantity: 100,
		Decoration:     enums.DecorationNone,
	}
	require.NoError(t, client.DB().Create(&order).Error)

	stages := make([]models.ProductionStage, 0, len(names))
	for i, name := range names {
		stage := models.ProductionStage{
			ID:            uuid.New(),
			OrderID:       order.ID,
			StageName:     name,
			SequenceIndex: i,
			Status:        enums.StageStatusPending,
			MaterialUsed:  decimal.Zero,
		}
		require.NoError(t, client.DB().Create(&stage).Error)
		stages = append(stages, stage)
	}
	return order, stages
}
