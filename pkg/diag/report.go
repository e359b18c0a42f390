package diag

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/robotalks/taskvisor/pkg/kernel"
)

// FormatHalt writes the human readable halt report.
func FormatHalt(w io.Writer, h *kernel.HaltError) {
	fmt.Fprintf(w, "*** SYSTEM HALTED at tick %d ***\n", h.Tick)
	fmt.Fprintf(w, "task %s (id %d): %v\n", h.Task.Name, h.Task.ID, h.Reason)
	fmt.Fprintf(w, "stack 0x%08x-0x%08x sp 0x%08x peak %d bytes\n",
		h.Task.StackBase, h.Task.StackTop, h.Task.SP, h.Task.StackPeak)
	FormatTasks(w, h.Tasks)
}

// FormatTasks writes a task table.
func FormatTasks(w io.Writer, tasks []kernel.TaskInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tPRIO\tRESTARTS\tSTACK\tPEAK\tBLOCKED ON")
	for _, t := range tasks {
		prio := fmt.Sprintf("%d", t.Priority)
		if t.Priority != t.BasePriority {
			prio = fmt.Sprintf("%d(%d)", t.Priority, t.BasePriority)
		}
		restarts := "-"
		if t.Restartable {
			restarts = fmt.Sprintf("%d", t.Restarts)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			t.ID, t.Name, t.State, prio, restarts,
			t.StackUsed(), t.StackTop-t.StackBase, t.StackPeak, t.BlockedOn)
	}
	tw.Flush()
}
