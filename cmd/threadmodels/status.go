package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Swind/go-thread-models/core"
)

// progressMax is the counter value that fills the progress bar once.
const progressMax = 12000

const progressWidth = 20

// progress maps the counter onto [0, 1); the bar wraps every progressMax increments.
func progress(counter uint64) float64 {
	return float64(counter%progressMax) / progressMax
}

func progressBar(p float64) string {
	filled := int(p * progressWidth)
	return fmt.Sprintf("[%s%s] %3.0f%%",
		strings.Repeat("#", filled), strings.Repeat("-", progressWidth-filled), p*100)
}

// memoryReader reports the resident set size of this process.
type memoryReader struct {
	proc *process.Process
}

func newMemoryReader() *memoryReader {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &memoryReader{}
	}
	return &memoryReader{proc: proc}
}

// String returns the RSS in human units, or "n/a" when it cannot be read.
func (m *memoryReader) String() string {
	if m.proc == nil {
		return "n/a"
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return "n/a"
	}
	return humanize.Bytes(info.RSS)
}

type statusLine struct {
	Tick    int
	Stats   core.ModelStats
	Counter uint64
	Memory  string
}

// statusPrinter renders one aligned row per report, with a header on the first.
type statusPrinter struct {
	out     io.Writer
	printed bool
}

func (p *statusPrinter) Print(line statusLine) {
	t := tabby.NewCustom(tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0))
	if !p.printed {
		t.AddHeader("TICK", "MODEL", "FOREGROUND", "BACKGROUND", "LIVE", "COUNTER", "PROGRESS", "MEMORY")
		p.printed = true
	}
	s := line.Stats
	t.AddLine(line.Tick, s.Kind, s.Foreground, s.Background+s.Disruptive, s.LiveContexts,
		humanize.Comma(int64(line.Counter)), progressBar(progress(line.Counter)), line.Memory)
	t.Print()
}
