package pending

import (
	"strconv"
	"strings"

	"main/internal/store"
	"main/pkg/scanner"
)

// isCloseEventName matches position-closing execution types by substring;
// venue schema versions name these inconsistently.
func isCloseEventName(name string) bool {
	return strings.Contains(name, "CLOSE") ||
		strings.Contains(name, "STOP_LOSS") ||
		strings.Contains(name, "TAKE_PROFIT")
}

// classifyClose decides target/stop/early from the event type text and
// the protective-level markers left in the trade record's notes.
func classifyClose(typeName, notes string, exitPrice float64) string {
	if strings.Contains(typeName, "TAKE_PROFIT") {
		return store.CloseReasonTarget
	}
	if strings.Contains(typeName, "STOP_LOSS") {
		return store.CloseReasonStop
	}
	if tp, ok := noteLevel(notes, "tp"); ok && priceNear(exitPrice, tp) {
		return store.CloseReasonTarget
	}
	if sl, ok := noteLevel(notes, "sl"); ok && priceNear(exitPrice, sl) {
		return store.CloseReasonStop
	}
	return store.CloseReasonEarly
}

func noteLevel(notes, key string) (float64, bool) {
	raw, ok := scanner.ScanDecimalAfter([]byte(notes), []byte(key), '=')
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func priceNear(price, level float64) bool {
	if level == 0 {
		return false
	}
	diff := price - level
	if diff < 0 {
		diff = -diff
	}
	return diff <= level*1e-4
}
