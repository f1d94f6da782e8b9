package aggregator

import (
	"fmt"
	"sync"
	"time"
)

var runIDMu sync.Mutex
var lastRunIDSecond string
var lastRunIDCounter int

// GenerateRunID produces a run id of the form YYYYMMDDTHHMMSS, suffixed
// with a monotonic counter for any additional run started within the
// same wall-clock second so concurrent or rapid-fire runs still sort and
// key uniquely.
func GenerateRunID(now time.Time) string {
	runIDMu.Lock()
	defer runIDMu.Unlock()

	second := now.UTC().Format("20060102T150405")
	if second != lastRunIDSecond {
		lastRunIDSecond = second
		lastRunIDCounter = 0
		return second
	}
	lastRunIDCounter++
	return fmt.Sprintf("%s-%d", second, lastRunIDCounter)
}
