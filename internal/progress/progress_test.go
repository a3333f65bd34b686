package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

func pipeline(statuses ...enums.StageStatus) []models.ProductionStage {
	names := []enums.StageName{
		enums.StageMaterialReview, enums.StageCutting, enums.StagePrinting,
		enums.StageStitching, enums.StageFinishing, enums.StageQualityCheck,
	}
	out := make([]models.ProductionStage, len(statuses))
	for i, status := range statuses {
		out[i] = models.ProductionStage{
			ID:            uuid.New(),
			StageName:     names[i%len(names)],
			SequenceIndex: i,
			Status:        status,
		}
	}
	return out
}

func TestOverallProgressCountsSkippedInTotalOnly(t *testing.T) {
	stages := pipeline(
		enums.StageStatusCompleted, enums.StageStatusCompleted, enums.StageStatusSkipped,
		enums.StageStatusCompleted, enums.StageStatusPending, enums.StageStatusPending,
	)
	assert.Equal(t, 50, OverallProgress(stages))

	current := CurrentStage(stages)
	require.NotNil(t, current)
	assert.Equal(t, 4, current.SequenceIndex)
}

func TestOverallProgressEdges(t *testing.T) {
	assert.Zero(t, OverallProgress(nil))
	assert.Equal(t, 100, OverallProgress(pipeline(enums.StageStatusCompleted)))
	assert.Equal(t, 33, OverallProgress(pipeline(enums.StageStatusCompleted, enums.StageStatusPending, enums.StageStatusSkipped)))
	assert.Equal(t, 67, OverallProgress(pipeline(enums.StageStatusCompleted, enums.StageStatusCompleted, enums.StageStatusSkipped)))
	assert.Zero(t, OverallProgress(pipeline(enums.StageStatusSkipped, enums.StageStatusSkipped)))
}

func TestCurrentStagePrefersActiveWork(t *testing.T) {
	stages := pipeline(
		enums.StageStatusCompleted, enums.StageStatusOnHold, enums.StageStatusPending,
		enums.StageStatusOutsourcedInProgress, enums.StageStatusInProgress,
	)
	current := CurrentStage(stages)
	require.NotNil(t, current)
	assert.Equal(t, 3, current.SequenceIndex)

	reversed := []models.ProductionStage{stages[4], stages[3], stages[2], stages[1], stages[0]}
	assert.Equal(t, 3, CurrentStage(reversed).SequenceIndex)

	waiting := pipeline(enums.StageStatusCompleted, enums.StageStatusOutsourcedPending, enums.StageStatusPending)
	assert.Equal(t, 1, CurrentStage(waiting).SequenceIndex)

	assert.Nil(t, CurrentStage(pipeline(enums.StageStatusCompleted, enums.StageStatusSkipped)))
	assert.Nil(t, CurrentStage(nil))
}

func TestProgressNeverDecreasesAsStagesClose(t *testing.T) {
	stages := pipeline(
		enums.StageStatusPending, enums.StageStatusPending, enums.StageStatusPending,
		enums.StageStatusPending, enums.StageStatusPending, enums.StageStatusPending,
	)
	steps := []struct {
		idx    int
		status enums.StageStatus
	}{
		{0, enums.StageStatusInProgress},
		{0, enums.StageStatusCompleted},
		{2, enums.StageStatusSkipped},
		{1, enums.StageStatusOnHold},
		{1, enums.StageStatusInProgress},
		{1, enums.StageStatusCompleted},
		{3, enums.StageStatusOutsourcedPending},
		{3, enums.StageStatusOutsourcedInProgress},
		{3, enums.StageStatusCompleted},
		{4, enums.StageStatusCompleted},
		{5, enums.StageStatusCompleted},
	}
	last := OverallProgress(stages)
	for _, step := range steps {
		stages[step.idx].Status = step.status
		next := OverallProgress(stages)
		assert.GreaterOrEqual(t, next, last, "after moving stage %d to %s", step.idx, step.status)
		last = next
	}
	assert.Equal(t, 83, last)
}

type stubReader struct {
	order  *models.ProductionOrder
	stages []models.ProductionStage
	err    error
}

func (s stubReader) FindOrder(context.Context, uuid.UUID) (*models.ProductionOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s stubReader) ListByOrder(context.Context, uuid.UUID) ([]models.ProductionStage, error) {
	return s.stages, nil
}

func TestGetOrderProgress(t *testing.T) {
	order := &models.ProductionOrder{ID: uuid.New(), NeedsManualReview: true}
	stages := pipeline(
		enums.StageStatusCompleted, enums.StageStatusCompleted, enums.StageStatusSkipped,
		enums.StageStatusCompleted, enums.StageStatusPending, enums.StageStatusPending,
	)
	svc, err := NewService(stubReader{order: order, stages: stages})
	require.NoError(t, err)

	got, err := svc.GetOrderProgress(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Percent)
	assert.Equal(t, 3, got.Completed)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, 6, got.Total)
	assert.True(t, got.NeedsManualReview)
	require.NotNil(t, got.CurrentStageName)
	assert.Equal(t, enums.StageFinishing, *got.CurrentStageName)
	assert.Equal(t, stages[4].ID, *got.CurrentStageID)
}

func TestGetOrderProgressErrors(t *testing.T) {
	svc, err := NewService(stubReader{})
	require.NoError(t, err)

	_, err = svc.GetOrderProgress(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = svc.GetOrderProgress(context.Background(), uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	svc, err = NewService(stubReader{err: errors.New("db down")})
	require.NoError(t, err)
	_, err = svc.GetOrderProgress(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}
