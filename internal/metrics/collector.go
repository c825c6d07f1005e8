// Package metrics collects run and order counters and exposes them in
// Prometheus text format.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"straddlebot/internal/strategy"
)

// Run outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeOneLegged = "one_legged"
	OutcomeFailed    = "failed"
)

// Collector accumulates counters over the process lifetime. All methods
// are safe for concurrent use.
type Collector struct {
	mutex sync.RWMutex

	runCount      map[string]int64 // [mode:outcome]
	orderCount    map[string]int64 // [leg:state]
	apiErrorCount map[string]int64 // [operation]

	lastRun   *strategy.RunReport
	startTime time.Time
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		runCount:      make(map[string]int64),
		orderCount:    make(map[string]int64),
		apiErrorCount: make(map[string]int64),
		startTime:     time.Now(),
	}
}

// RecordRun increments the run counter for a mode and outcome and keeps
// the report as the last-run snapshot
func (c *Collector) RecordRun(report *strategy.RunReport) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.runCount[report.Mode+":"+Outcome(report)]++
	for _, leg := range report.Legs {
		state := leg.OrderState
		if leg.Error != "" {
			state = "failed"
		}
		c.orderCount[leg.Kind+":"+state]++
	}
	c.lastRun = report
}

// RecordAPIError increments the API error counter for an operation
func (c *Collector) RecordAPIError(operation string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.apiErrorCount[operation]++
}

// Outcome classifies a run report into a counter label
func Outcome(report *strategy.RunReport) string {
	switch {
	case report.Succeeded():
		return OutcomeSuccess
	case report.OneLegged():
		return OutcomeOneLegged
	default:
		return OutcomeFailed
	}
}

// LastRun returns the most recent run report, or nil before the first run
func (c *Collector) LastRun() *strategy.RunReport {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastRun
}

// Uptime returns the time since the collector was created
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Reset clears all counters and the last-run snapshot
func (c *Collector) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.runCount = make(map[string]int64)
	c.orderCount = make(map[string]int64)
	c.apiErrorCount = make(map[string]int64)
	c.lastRun = nil
	c.startTime = time.Now()
}

// Collect renders all counters in Prometheus text format
func (c *Collector) Collect() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var lines []string

	lines = append(lines, "# HELP straddle_uptime_seconds Time since the process started")
	lines = append(lines, "# TYPE straddle_uptime_seconds counter")
	lines = append(lines, fmt.Sprintf("straddle_uptime_seconds %f", time.Since(c.startTime).Seconds()))
	lines = append(lines, "")

	lines = append(lines, "# HELP straddle_runs_total Strategy runs by mode and outcome")
	lines = append(lines, "# TYPE straddle_runs_total counter")
	lines = append(lines, counterLines("straddle_runs_total", c.runCount, "mode", "outcome")...)
	lines = append(lines, "")

	lines = append(lines, "# HELP straddle_orders_total Orders by leg and state")
	lines = append(lines, "# TYPE straddle_orders_total counter")
	lines = append(lines, counterLines("straddle_orders_total", c.orderCount, "leg", "state")...)
	lines = append(lines, "")

	lines = append(lines, "# HELP straddle_api_errors_total Exchange API errors by operation")
	lines = append(lines, "# TYPE straddle_api_errors_total counter")
	for _, op := range sortedKeys(c.apiErrorCount) {
		lines = append(lines, fmt.Sprintf(`straddle_api_errors_total{operation=%q} %d`, op, c.apiErrorCount[op]))
	}

	return strings.Join(lines, "\n") + "\n"
}

func counterLines(name string, counts map[string]int64, labelA, labelB string) []string {
	var lines []string
	for _, key := range sortedKeys(counts) {
		a, b, _ := strings.Cut(key, ":")
		lines = append(lines, fmt.Sprintf(`%s{%s=%q,%s=%q} %d`, name, labelA, a, labelB, b, counts[key]))
	}
	return lines
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
