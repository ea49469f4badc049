package main

import (
	"fmt"
	"sort"

	"github.com/roelfdiedericks/clawkeeper/internal/metrics"
)

type MetricsCmd struct {
	JSON bool `help:"Emit the snapshot as JSON."`
}

func (c *MetricsCmd) Run(rc *runContext) error {
	// Load persisted history before reading.
	rc.openMetrics()

	snap := metrics.GetInstance().Snapshot()
	if c.JSON {
		return printJSON(snap)
	}
	if len(snap) == 0 {
		fmt.Println("no metrics recorded yet")
		return nil
	}

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := snap[k]
		switch data := s.Data.(type) {
		case metrics.TimingSnapshot:
			fmt.Printf("%-26s %s %5d calls  avg %6.0fms  p95 %6.0fms  max %6.0fms\n",
				k, healthMark(s.Health), data.Count, data.AvgMs, data.P95Ms, data.MaxMs)
		case metrics.CounterSnapshot:
			fmt.Printf("%-26s %s %5d\n", k, healthMark(s.Health), data.Value)
		case metrics.SuccessFailSnapshot:
			fmt.Printf("%-26s %s %5d ok / %d failed (%.1f%% success)\n",
				k, healthMark(s.Health), data.Success, data.Failures, data.SuccessRate)
			reasons := make([]string, 0, len(data.FailureReasons))
			for r := range data.FailureReasons {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Printf("    %s: %d\n", r, data.FailureReasons[r])
			}
		}
	}
	return nil
}

func healthMark(h metrics.HealthStatus) string {
	switch h {
	case metrics.HealthCritical:
		return "!!"
	case metrics.HealthWarning:
		return " !"
	default:
		return "  "
	}
}
