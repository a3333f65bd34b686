package enums

// StageName identifies a fixed position in the production pipeline.
type StageName string

const (
	StageMaterialReview StageName = "material_review"
	StageCutting        StageName = "cutting"
	StagePrinting       StageName = "printing"
	StageEmbroidery     StageName = "embroidery"
	StageStitching      StageName = "stitching"
	StageFinishing      StageName = "finishing"
	StageQualityCheck   StageName = "quality_check"
)

var validStageNames = []StageName{
	StageMaterialReview,
	StageCutting,
	StagePrinting,
	StageEmbroidery,
	StageStitching,
	StageFinishing,
	StageQualityCheck,
}

// String implements fmt.Stringer.
func (s StageName) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StageName.
func (s StageName) IsValid() bool {
	return known(s, validStageNames)
}

// ParseStageName converts raw input into a StageName.
func ParseStageName(value string) (StageName, error) {
	return parse("stage name", value, validStageNames)
}
