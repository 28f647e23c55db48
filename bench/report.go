package bench

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"

	"github.com/Swind/go-thread-models/core"
)

// Result is one strategy's measurement.
type Result struct {
	Kind core.ThreadModelKind

	// Total is the dispatch time of one run, averaged over every repeat.
	Total time.Duration

	// PerOp is Total in seconds divided by workers*iterations.
	PerOp float64

	// Runs holds the per-operation seconds of every repeat.
	Runs []float64

	// StdDev is the standard deviation of Runs; zero for a single run.
	StdDev float64
}

// Report holds one Result per strategy in the order they ran.
type Report struct {
	Workers    int
	Iterations int
	Repeat     int
	Results    []Result
}

// Result returns the measurement of kind.
func (r *Report) Result(kind core.ThreadModelKind) (Result, bool) {
	for _, res := range r.Results {
		if res.Kind == kind {
			return res, true
		}
	}
	return Result{}, false
}

func strategyLabel(kind core.ThreadModelKind) string {
	switch kind {
	case core.KindOneThreadPerTask:
		return "OS threads"
	case core.KindPooledWorkerTasks:
		return "pooled tasks"
	default:
		return "sequential"
	}
}

// String renders the report as a heading followed by an aligned table.
func (r *Report) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Benchmark results (workers = %d, iters = %d", r.Workers, r.Iterations)
	if r.Repeat > 1 {
		fmt.Fprintf(&buf, ", repeat = %d", r.Repeat)
	}
	buf.WriteString(")\n\n")

	t := tabby.NewCustom(tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0))
	if r.Repeat > 1 {
		t.AddHeader("MODEL", "STRATEGY", "TOTAL", "S/OP", "STDDEV")
	} else {
		t.AddHeader("MODEL", "STRATEGY", "TOTAL", "S/OP")
	}
	for _, res := range r.Results {
		perOp := fmt.Sprintf("%.9f", res.PerOp)
		if r.Repeat > 1 {
			t.AddLine(res.Kind.String(), strategyLabel(res.Kind), res.Total, perOp, fmt.Sprintf("%.9f", res.StdDev))
			continue
		}
		t.AddLine(res.Kind.String(), strategyLabel(res.Kind), res.Total, perOp)
	}
	t.Print()
	return buf.String()
}
