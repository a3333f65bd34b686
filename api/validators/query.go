package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

const limitParam = "limit"

// PageLimit bounds the ?limit query value of a list endpoint.
type PageLimit struct {
	Default int
	Max     int
}

// Parse returns Default when ?limit is absent. A present value must be a
// single unsigned integer between 1 and Max.
func (p PageLimit) Parse(r *http.Request) (int, error) {
	values, ok := r.URL.Query()[limitParam]
	if !ok {
		return p.Default, nil
	}
	if len(values) != 1 {
		return 0, limitError("limit may be given once", nil)
	}
	raw := strings.TrimSpace(values[0])
	if raw == "" {
		return p.Default, nil
	}
	n, err := strconv.ParseUint(raw, 10, 31)
	if err != nil {
		return 0, limitError("limit must be a positive integer", map[string]any{"value": raw})
	}
	if n == 0 || int(n) > p.Max {
		return 0, limitError("limit out of range", map[string]any{"value": n, "max": p.Max})
	}
	return int(n), nil
}

func limitError(msg string, extra map[string]any) error {
	details := map[string]any{"field": limitParam}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}
