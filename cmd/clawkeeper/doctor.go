package main

import (
	"context"
	"fmt"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/doctor"
)

type DoctorCmd struct {
	JSON bool `help:"Emit the report as JSON."`
}

func (c *DoctorCmd) Run(rc *runContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	diag := doctor.Run(ctx, doctor.Options{CLI: rc.cli, Version: version})
	if c.JSON {
		return printJSON(diag)
	}

	fmt.Printf("clawkeeper doctor report (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Printf("system: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
	fmt.Println("---")

	for _, res := range diag.Results {
		fmt.Printf("%s %-17s: %s\n", statusIcon(res.Status), res.Name, res.Message)
		if res.Detail != "" {
			fmt.Printf("    %s\n", res.Detail)
		}
	}

	if n := diag.Failed(); n > 0 {
		return fmt.Errorf("%d checks failed", n)
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case "FAIL":
		return "❌"
	case "WARN":
		return "⚠️ "
	case "SKIP":
		return "⏩"
	default:
		return "✅"
	}
}
