package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotelhex/rotelhex/internal/display"
)

// Printer writes styled CLI output. Commands print a header, do their work,
// then print a result box.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer that writes to w. If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the width used for boxes
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details map[string]string) {
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints a failure box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintPanel prints the front panel for snap
func (p *Printer) PrintPanel(snap display.Snapshot) {
	p.Println(RenderPanel(snap, p.width))
}

// PrintList prints a titled list of names, several per line
func (p *Printer) PrintList(title string, items []string) {
	p.Println(HeaderTitleStyle.Render(strings.ToUpper(title)))
	perLine := (p.width - 4) / 20
	if perLine < 1 {
		perLine = 1
	}
	for i := 0; i < len(items); i += perLine {
		end := i + perLine
		if end > len(items) {
			end = len(items)
		}
		row := make([]string, 0, perLine)
		for _, item := range items[i:end] {
			row = append(row, fmt.Sprintf("%-20s", item))
		}
		p.Println("  " + strings.TrimRight(strings.Join(row, ""), " "))
	}
}
