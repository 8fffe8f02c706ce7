package analytics

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMethod  = errors.New("unknown regression method")
	ErrNotConverged   = errors.New("regression did not converge")
	ErrInvalidWindow  = errors.New("window must be at least 2")
	ErrInvalidPair    = errors.New("pair must look like SYMBOLA-SYMBOLB")
	ErrTooFewSamples  = errors.New("sample size is too short")
	ErrSingularDesign = errors.New("design matrix is singular")
)

// Method selects the hedge ratio estimator.
type Method int

const (
	OLS Method = iota
	Huber
	TheilSen
	Kalman
)

func (m Method) String() string {
	switch m {
	case OLS:
		return "OLS"
	case Huber:
		return "Huber"
	case TheilSen:
		return "Theil-Sen"
	case Kalman:
		return "Kalman"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod resolves a method label. Matching ignores case, spaces,
// hyphens and underscores, so "theil_sen" and "Theil-Sen" are the same.
func ParseMethod(s string) (Method, error) {
	k := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch k {
	case "", "ols":
		return OLS, nil
	case "huber":
		return Huber, nil
	case "theilsen":
		return TheilSen, nil
	case "kalman":
		return Kalman, nil
	}
	return OLS, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}
