package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

// printTask writes the task counters followed by one line per unit.
func printTask(ctx context.Context, w io.Writer, svc *services.CollectionService, taskID string) error {
	task, err := svc.GetTaskStatus(ctx, taskID)
	if err != nil {
		return err
	}
	results, err := svc.Results(ctx, taskID)
	if err != nil {
		return err
	}

	_, _ = bold.Fprintf(w, "Task %s\n", task.ID)
	fmt.Fprintf(w, "  status:    %s\n", taskStatusColor(task.Status).Sprint(task.Status))
	fmt.Fprintf(w, "  progress:  %d%%\n", task.Progress)
	fmt.Fprintf(w, "  completed: %d/%d\n", task.CompletedCount, task.Total())
	fmt.Fprintf(w, "  failed:    %d/%d\n", task.FailedCount, task.Total())
	if task.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:     %s\n", red.Sprint(firstLine(task.ErrorMessage)))
	}
	if len(results) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tNAME\tADDRESS\tSTATUS\tMETHOD\tERROR")
	for _, r := range results {
		method, msg := "-", ""
		if r.Detail != nil {
			method = r.Detail.Method
			msg = firstLine(r.Detail.ErrorMessage)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.UnitID, r.Name, r.Address, unitStatusColor(r.CollectionStatus).Sprint(r.CollectionStatus), method, msg)
	}
	return tw.Flush()
}

func taskStatusColor(s models.TaskStatus) *color.Color {
	switch s {
	case models.TaskStatusCompleted:
		return green
	case models.TaskStatusFailed:
		return red
	default:
		return yellow
	}
}

func unitStatusColor(s models.CollectionStatus) *color.Color {
	switch s {
	case models.CollectionStatusCompleted, models.CollectionStatusCollected:
		return green
	case models.CollectionStatusFailed:
		return red
	default:
		return yellow
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
