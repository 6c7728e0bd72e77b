package parser

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

// The summaries render values the way Python prints lists of tuples, e.g.
// [(1, 'alice'), (2, None)]. The model sees the same text whatever engine
// produced the rows.

// reprValue renders a scanned database value as a Python literal.
func reprValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return reprString(x)
	case []byte:
		return "b" + reprString(string(x))
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return reprFloat(float64(x))
	case float64:
		return reprFloat(x)
	case *big.Int:
		return x.String()
	case duckdb.Decimal:
		return reprDecimal(x)
	case duckdb.Interval:
		return reprString(formatInterval(x))
	case time.Time:
		return reprString(formatTime(x))
	case [16]byte:
		return reprString(uuid.UUID(x).String())
	case []any:
		return reprList(x)
	case duckdb.Map:
		return reprMap(x)
	case map[any]any:
		return reprMap(x)
	case map[string]any:
		m := make(map[any]any, len(x))
		for k, v := range x {
			m[k] = v
		}
		return reprMap(m)
	case fmt.Stringer:
		return reprString(x.String())
	default:
		return reprString(fmt.Sprint(x))
	}
}

func reprFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// reprDecimal renders the exact value, e.g. 999 at scale 2 is 9.99.
func reprDecimal(d duckdb.Decimal) string {
	if d.Value == nil {
		return "None"
	}
	digits := new(big.Int).Abs(d.Value).String()
	sign := ""
	if d.Value.Sign() < 0 {
		sign = "-"
	}
	scale := int(d.Scale)
	if scale == 0 {
		return sign + digits
	}
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	cut := len(digits) - scale
	return sign + digits[:cut] + "." + digits[cut:]
}

// formatTime drops a zero clock so DATE values read as dates.
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02 15:04:05.000000")
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatInterval renders e.g. "1 month 2 days 00:00:03".
func formatInterval(iv duckdb.Interval) string {
	var parts []string
	if iv.Months != 0 {
		parts = append(parts, plural(int64(iv.Months), "month"))
	}
	if iv.Days != 0 {
		parts = append(parts, plural(int64(iv.Days), "day"))
	}

	micros := iv.Micros
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	d := time.Duration(micros) * time.Microsecond
	clock := fmt.Sprintf("%s%02d:%02d:%02d", sign, int64(d.Hours()), int64(d.Minutes())%60, int64(d.Seconds())%60)
	if frac := micros % 1_000_000; frac != 0 {
		clock += fmt.Sprintf(".%06d", frac)
	}
	if micros != 0 || len(parts) == 0 {
		parts = append(parts, clock)
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// reprList renders a LIST value as a Python list.
func reprList(items []any) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = reprValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// reprMap renders a MAP or STRUCT value as a Python dict, keys sorted.
func reprMap(m map[any]any) string {
	entries := make([]string, 0, len(m))
	for k, v := range m {
		entries = append(entries, reprValue(k)+": "+reprValue(v))
	}
	sort.Strings(entries)
	return "{" + strings.Join(entries, ", ") + "}"
}

// reprString quotes s with single quotes unless it contains a single quote
// and no double quote, matching Python's str repr.
func reprString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r == rune(quote) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// reprTuple renders one row. A single element keeps its trailing comma.
func reprTuple(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = reprValue(v)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// reprRows renders rows as a list of tuples.
func reprRows(rows [][]any) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = reprTuple(row)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// reprStrings renders a list of strings, e.g. ['id', 'name'].
func reprStrings(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = reprString(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
