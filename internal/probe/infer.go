package probe

import (
	"strings"

	"csvingest/internal/schema"
	"csvingest/internal/value"
)

// DefaultSampleSize is the sample window used when none is configured.
const DefaultSampleSize = 100

// InferOptions tunes Infer.
type InferOptions struct {
	// MaxSample bounds how many samples are inspected. <= 0 means
	// DefaultSampleSize.
	MaxSample int

	// PreserveLeadingZeros keeps columns containing values such as "007" out
	// of INTEGER and REAL, so zip codes and phone numbers stay TEXT.
	PreserveLeadingZeros bool
}

// Infer picks the most restrictive type satisfied by every non-empty sample,
// trying INTEGER, REAL, BOOLEAN, DATE and finally TEXT. nullable is true when
// any inspected sample is empty or whitespace-only; a column without a
// single non-empty sample is TEXT and nullable.
//
// BOOLEAN additionally requires at most two distinct (case-folded) values.
// A digit string outside the int64 range rules out INTEGER and REAL both.
// Because each candidate type is dropped as soon as one sample fails it,
// adding a sample can only move the result toward TEXT.
func Infer(samples []string, opt InferOptions) (schema.ColumnType, bool) {
	maxSample := opt.MaxSample
	if maxSample <= 0 {
		maxSample = DefaultSampleSize
	}
	if len(samples) > maxSample {
		samples = samples[:maxSample]
	}

	var (
		seen     bool
		nullable bool
		allInt   = true
		allReal  = true
		allBool  = true
		allDate  = true
		distinct = make(map[string]struct{}, 2)
	)

	for _, raw := range samples {
		v := strings.TrimSpace(raw)
		if v == "" {
			nullable = true
			continue
		}
		seen = true

		if opt.PreserveLeadingZeros && (allInt || allReal) && value.HasLeadingZero(v) {
			allInt = false
			allReal = false
		}
		if allInt {
			if _, ok := value.ParseInteger(v); !ok {
				allInt = false
			}
		}
		if allReal {
			if _, ok := value.ParseReal(v); !ok {
				allReal = false
			}
		}
		if allBool {
			if _, ok := value.ParseBoolean(v); !ok {
				allBool = false
			} else {
				distinct[strings.ToLower(v)] = struct{}{}
				if len(distinct) > 2 {
					allBool = false
				}
			}
		}
		if allDate {
			if _, ok := value.ParseDate(v); !ok {
				allDate = false
			}
		}
	}

	if !seen {
		return schema.Text, true
	}

	switch {
	case allInt:
		return schema.Integer, nullable
	case allReal:
		return schema.Real, nullable
	case allBool:
		return schema.Boolean, nullable
	case allDate:
		return schema.Date, nullable
	default:
		return schema.Text, nullable
	}
}

// Rank orders types from most (0) to least restrictive. Useful for checking
// that inference only ever loosens.
func Rank(t schema.ColumnType) int {
	switch t {
	case schema.Integer:
		return 0
	case schema.Real:
		return 1
	case schema.Boolean:
		return 2
	case schema.Date:
		return 3
	default:
		return 4
	}
}
