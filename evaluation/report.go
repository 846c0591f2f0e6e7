package evaluation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// MetricsTimeLayout is the timestamp layout of a metrics line (DD-MM-YY HH:MM:SS).
const MetricsTimeLayout = "02-01-06 15:04:05"

// Round2 rounds the exact binary value of v to two decimals, so 0.215
// (stored just below 0.215) becomes 0.21 and exact ties such as 0.125 go
// to even.
func Round2(v float64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatFloat(v, 'f', 2, 64))
}

// FormatMetric renders Round2(v) without trailing zeros, keeping at least
// one fractional digit: 1 → "1.0", 0.5 → "0.5", 0.9667 → "0.97".
func FormatMetric(v float64) string {
	s := Round2(v).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// MetricsLine formats the line AppendMetrics writes, including its leading
// newline.
func MetricsLine(now time.Time, r *Result) string {
	return fmt.Sprintf("\n%s Accuracy = %s, F1 Score = %s",
		now.Format(MetricsTimeLayout), FormatMetric(r.Accuracy), FormatMetric(r.F1))
}

// AppendMetrics appends one metrics line to path, creating the file and its
// directory if needed. Existing content is never truncated.
func AppendMetrics(path string, now time.Time, r *Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create metrics directory %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open metrics log %s", path)
	}
	if _, err := f.WriteString(MetricsLine(now, r)); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "append metrics log %s", path)
	}
	return errors.Wrap(f.Close(), "close metrics log")
}

// ConsoleLine is the one-line summary printed at the end of a run. The
// percentage is computed from the unrounded accuracy.
func ConsoleLine(r *Result) string {
	pct := decimal.NewFromFloat(r.Accuracy).Mul(decimal.NewFromInt(100)).RoundBank(2)
	return fmt.Sprintf("Accuracy: %s%% F1: %s", pct.String(), FormatMetric(r.F1))
}
