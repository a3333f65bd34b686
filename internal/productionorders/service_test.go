package productionorders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/erp-backend/pkg/db/dbtest"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/outbox"
)

func TestPipeline(t *testing.T) {
	assert.Equal(t, []enums.StageName{
		enums.StageMaterialReview, enums.StageCutting, enums.StageStitching,
		enums.StageFinishing, enums.StageQualityCheck,
	}, Pipeline(enums.DecorationNone))
	assert.Equal(t, []enums.StageName{
		enums.StageMaterialReview, enums.StageCutting, enums.StageEmbroidery,
		enums.StageStitching, enums.StageFinishing, enums.StageQualityCheck,
	}, Pipeline(enums.DecorationEmbroidery))
	assert.Contains(t, Pipeline(enums.DecorationPrinting), enums.StagePrinting)
}

func newService(t *testing.T) (Service, *outbox.Repository) {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	events := outbox.NewRepository(client.DB())
	svc, err := NewService(NewRepository(client.DB()), client, outbox.NewService(events, logg), logg)
	require.NoError(t, err)
	return svc, events
}

func TestCreateOrderBuildsPipeline(t *testing.T) {
	svc, events := newService(t)
	ctx := context.Background()
	vendor := "  Star Prints "

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		OrderNumber:      "PO-2026-0042",
		ProductRef:       "SKU-HOODIE-BLK",
		TargetQuantity:   250,
		Decoration:       enums.DecorationPrinting,
		OutsourcedStages: []OutsourcedStage{{Stage: enums.StagePrinting, VendorRef: &vendor}},
	})
	require.NoError(t, err)
	require.Len(t, order.Stages, 6)

	loaded, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Stages, 6)
	for i, stage := range loaded.Stages {
		assert.Equal(t, i, stage.SequenceIndex)
		assert.Equal(t, enums.StageStatusPending, stage.Status)
		assert.True(t, stage.MaterialUsed.IsZero())
	}
	printing := loaded.Stages[2]
	assert.Equal(t, enums.StagePrinting, printing.StageName)
	assert.True(t, printing.Outsourced)
	require.NotNil(t, printing.VendorRef)
	assert.Equal(t, "Star Prints", *printing.VendorRef)
	assert.False(t, loaded.Stages[3].Outsourced)

	rows, err := events.ListForAggregate(nil, enums.AggregateProductionOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventProductionOrderCreated, rows[0].EventType)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newService(t)
	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{"missing number", CreateOrderInput{ProductRef: "SKU", TargetQuantity: 1}},
		{"missing product", CreateOrderInput{OrderNumber: "PO-1", TargetQuantity: 1}},
		{"zero quantity", CreateOrderInput{OrderNumber: "PO-1", ProductRef: "SKU"}},
		{"bad decoration", CreateOrderInput{OrderNumber: "PO-1", ProductRef: "SKU", TargetQuantity: 1, Decoration: "sequins"}},
		{"outsourced stage outside pipeline", CreateOrderInput{
			OrderNumber: "PO-1", ProductRef: "SKU", TargetQuantity: 1,
			OutsourcedStages: []OutsourcedStage{{Stage: enums.StageEmbroidery}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tc.input)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

func TestCreateOrderDuplicateNumber(t *testing.T) {
	svc, _ := newService(t)
	input := CreateOrderInput{OrderNumber: "PO-7", ProductRef: "SKU-TEE", TargetQuantity: 10}

	_, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), input)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestGetOrderNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetOrder(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}
