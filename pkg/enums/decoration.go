package enums

// Decoration selects the optional decoration stage of a pipeline.
type Decoration string

const (
	DecorationNone       Decoration = "none"
	DecorationPrinting   Decoration = "printing"
	DecorationEmbroidery Decoration = "embroidery"
)

var validDecorations = []Decoration{
	DecorationNone,
	DecorationPrinting,
	DecorationEmbroidery,
}

// String implements fmt.Stringer.
func (d Decoration) String() string {
	return string(d)
}

// IsValid reports whether the value is a known Decoration.
func (d Decoration) IsValid() bool {
	return known(d, validDecorations)
}

// Stage returns the pipeline stage the decoration adds, if any.
func (d Decoration) Stage() (StageName, bool) {
	switch d {
	case DecorationPrinting:
		return StagePrinting, true
	case DecorationEmbroidery:
		return StageEmbroidery, true
	default:
		return "", false
	}
}

// ParseDecoration converts raw input into a Decoration. Empty input means none.
func ParseDecoration(value string) (Decoration, error) {
	if value == "" {
		return DecorationNone, nil
	}
	return parse("decoration", value, validDecorations)
}
