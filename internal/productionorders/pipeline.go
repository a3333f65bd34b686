package productionorders

import "github.com/loomline/erp-backend/pkg/enums"

// Pipeline returns the stage sequence for an order. The decoration stage,
// when chosen, sits between cutting and stitching.
func Pipeline(decoration enums.Decoration) []enums.StageName {
	stages := []enums.StageName{enums.StageMaterialReview, enums.StageCutting}
	if stage, ok := decoration.Stage(); ok {
		stages = append(stages, stage)
	}
	return append(stages, enums.StageStitching, enums.StageFinishing, enums.StageQualityCheck)
}
