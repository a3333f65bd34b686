package progress

import (
	"math"
	"sort"

	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
)

// OverallProgress is the rounded percentage of completed stages. Skipped
// stages count toward the total but never toward completion.
func OverallProgress(stages []models.ProductionStage) int {
	if len(stages) == 0 {
		return 0
	}
	completed := 0
	for _, stage := range stages {
		if stage.Status == enums.StageStatusCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(stages))))
}

// CurrentStage picks the first active stage by sequence, falling back to
// the first stage still waiting for work. It returns nil once every stage
// is closed.
func CurrentStage(stages []models.ProductionStage) *models.ProductionStage {
	ordered := make([]models.ProductionStage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceIndex < ordered[j].SequenceIndex
	})

	for i := range ordered {
		if ordered[i].Status.IsActive() {
			return &ordered[i]
		}
	}
	for i := range ordered {
		switch ordered[i].Status {
		case enums.StageStatusPending, enums.StageStatusOnHold, enums.StageStatusOutsourcedPending:
			return &ordered[i]
		}
	}
	return nil
}
