package order

import (
	"fmt"
	"time"
)

// SequencePrefix returns the per-day sequence key for t.
func SequencePrefix(t time.Time) string {
	return t.Format("20060102")
}

// FormatNumber renders an order number such as ORD-20250615-0042. Sequences
// beyond 9999 keep all their digits.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", prefix, seq)
}
