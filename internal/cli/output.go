package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/a3tai/pdf-playground/internal/workflow"
)

// printer writes results to out and problems to errOut.
type printer struct {
	out    io.Writer
	errOut io.Writer

	ok   *color.Color
	fail *color.Color
	hint *color.Color
	bold *color.Color
}

func newPrinter(out, errOut io.Writer, noColor bool) *printer {
	p := &printer{
		out:    out,
		errOut: errOut,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		hint:   color.New(color.FgYellow),
		bold:   color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.ok, p.fail, p.hint, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) printf(format string, a ...interface{}) {
	fmt.Fprintf(p.out, format, a...)
}

func (p *printer) successf(format string, a ...interface{}) {
	p.ok.Fprintf(p.out, format+"\n", a...)
}

func (p *printer) headingf(format string, a ...interface{}) {
	p.bold.Fprintf(p.out, format+"\n", a...)
}

func (p *printer) errorf(format string, a ...interface{}) {
	p.fail.Fprintf(p.errOut, format+"\n", a...)
}

func (p *printer) hintf(format string, a ...interface{}) {
	p.hint.Fprintf(p.errOut, format+"\n", a...)
}

// fieldView prints a listing the way the browser renders it.
func (p *printer) fieldView(view workflow.FieldView) {
	switch view.Status {
	case workflow.StatusError:
		p.errorf("%s", view.Error)
	case workflow.StatusEmpty:
		p.printf("%s\n", view.Message)
	default:
		for _, item := range view.Items {
			p.printf("  %s\n", item)
		}
	}
}
