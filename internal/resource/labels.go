package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LabelSingular turns a resource slug into a display label:
// "mandi-receipt" becomes "Mandi Receipt".
func LabelSingular(slug string) string {
	return capWords(strings.ReplaceAll(slug, "-", " "))
}

// LabelPlural is LabelSingular with the last word pluralized.
func LabelPlural(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = inflection.Plural(words[len(words)-1])
	return capWords(strings.Join(words, " "))
}

func capWords(s string) string {
	// cases.Caser is stateful; build one per call.
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}

func FormatLabel(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// FormatDateTime renders time values with layout (default 2006-01-02).
// Nil and zero times render as "", other values with fmt.
func FormatDateTime(v any, layout ...string) string {
	l := "2006-01-02"
	if len(layout) > 0 && layout[0] != "" {
		l = layout[0]
	}
	t, ok, null := asTime(v)
	if null {
		return ""
	}
	if !ok {
		return fmt.Sprint(v)
	}
	if t.IsZero() {
		return ""
	}
	return t.Format(l)
}

// RoundDateTime drops sub-second precision. Non-time values pass through.
func RoundDateTime(v any) any {
	t, ok, _ := asTime(v)
	if !ok {
		return v
	}
	return t.Truncate(time.Second)
}

// asTime unwraps the time types a row scan can produce. null is set for
// nil, nil pointers and invalid pgtype values.
func asTime(v any) (t time.Time, ok, null bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, true
	case time.Time:
		return x, true, false
	case *time.Time:
		if x == nil {
			return time.Time{}, false, true
		}
		return *x, true, false
	case pgtype.Date:
		return x.Time, x.Valid, !x.Valid
	case pgtype.Timestamp:
		return x.Time, x.Valid, !x.Valid
	case pgtype.Timestamptz:
		return x.Time, x.Valid, !x.Valid
	default:
		return time.Time{}, false, false
	}
}

// NestedValue resolves a dotted key against a row. A flattened key
// ("mandi.mandi_name") wins over walking nested maps. Misses yield nil.
func NestedValue(row map[string]any, key string) any {
	if v, ok := row[key]; ok {
		return v
	}
	var cur any = row
	for part := range strings.SplitSeq(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

const (
	PriceNoteFirstReceipt = "This is first receipt in Mandi"
	PriceNoteBelowMin     = "The Rate is below min rate"
	PriceNoteAboveMax     = "The Rate is exceeding the max rate"
)

// PriceRangeNote compares a receipt rate against the mandi's known range.
// A missing or zero bound means no earlier receipt exists.
func PriceRangeNote(price, minPrice, maxPrice any) string {
	lo, okLo := AsFloat(minPrice)
	hi, okHi := AsFloat(maxPrice)
	if !okLo || !okHi || lo == 0 || hi == 0 {
		return PriceNoteFirstReceipt
	}
	p, ok := AsFloat(price)
	if !ok {
		return ""
	}
	switch {
	case p < lo:
		return PriceNoteBelowMin
	case p > hi:
		return PriceNoteAboveMax
	default:
		return ""
	}
}

// AsFloat converts numeric scan results to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
