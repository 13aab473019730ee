package tracer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/chazu/uatu/pkg/bytecode"
)

// DebugPrinter writes line records and events as they happen.
type DebugPrinter struct {
	w io.Writer

	lineColor   *color.Color
	callColor   *color.Color
	returnColor *color.Color
	assignColor *color.Color
}

// NewDebugPrinter writes to w. Output is coloured only when w is a terminal.
func NewDebugPrinter(w io.Writer) *DebugPrinter {
	p := &DebugPrinter{
		w:           w,
		lineColor:   color.New(color.FgHiBlack),
		callColor:   color.New(color.FgCyan, color.Bold),
		returnColor: color.New(color.FgMagenta),
		assignColor: color.New(color.FgGreen),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.lineColor, p.callColor, p.returnColor, p.assignColor} {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Line prints the record for a line notification and the captures it
// scheduled.
func (p *DebugPrinter) Line(line int, unit *bytecode.CodeUnit, scheduled []PendingCapture) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%d, line, %s, %s)", line, unit.Filename, unit.Name)
	if len(scheduled) > 0 {
		names := make([]string, len(scheduled))
		for i, pc := range scheduled {
			names[i] = pc.Name
		}
		fmt.Fprintf(&sb, " pending [%s]", strings.Join(names, " "))
	}
	fmt.Fprintln(p.w, p.lineColor.Sprint(sb.String()))
}

// Event prints one recorded event.
func (p *DebugPrinter) Event(ev Event) {
	c := p.assignColor
	switch ev.Kind {
	case KindCall:
		c = p.callColor
	case KindReturn:
		c = p.returnColor
	}
	fmt.Fprintln(p.w, c.Sprint("Event ", ev.String()))
}
