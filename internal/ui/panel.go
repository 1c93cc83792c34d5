package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

// RenderPanel draws the receiver's front panel from a display snapshot
func RenderPanel(snap display.Snapshot, width int) string {
	width = clampWidth(width)

	segments := lipgloss.JoinHorizontal(lipgloss.Top,
		renderSegment("SOURCE", snap.Source),
		"  ",
		renderSegment("RECORD", snap.Record),
	)

	lines := []string{
		powerLine(snap.PowerState),
		"",
		segments,
		"",
		StatusLineStyle.Render(fmt.Sprintf("source: %s   record: %s", basicName(snap.BasicSource), basicName(snap.BasicRecord))),
	}
	if snap.LabelChange {
		lines = append(lines, labelLine(snap))
	}

	return PanelBoxStyle(width).Render(strings.Join(lines, "\n"))
}

func renderSegment(label string, seg protocol.Segment) string {
	text := seg.String()
	if seg == display.Standby {
		text = "-----"
	}
	return lipgloss.JoinVertical(lipgloss.Center,
		SegmentLabelStyle.Render(label),
		SegmentStyle.Render(text),
	)
}

func powerLine(p display.PowerState) string {
	color := MutedColor
	switch p {
	case display.PowerOn:
		color = SuccessColor
	case display.PowerStandby:
		color = ErrorColor
	}
	marker := lipgloss.NewStyle().Foreground(color).Render(PowerMarker)
	return marker + " " + HeaderParamValueStyle.Render("power "+p.String())
}

func labelLine(snap display.Snapshot) string {
	style := lipgloss.NewStyle().Foreground(WarningColor).PaddingLeft(2)
	if snap.CharIndex < 0 {
		return style.Render("label edit: waiting for first character")
	}
	return style.Render(fmt.Sprintf("label edit: %q at position %d", protocol.DecodeChar(snap.Char), snap.CharIndex+1))
}

// basicName renders a sticky basic field for the status line
func basicName(seg protocol.Segment) string {
	switch seg {
	case display.Standby:
		return "standby"
	case protocol.Blank:
		return "-"
	}
	return strings.TrimSpace(seg.String())
}
