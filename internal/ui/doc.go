// Package ui renders terminal output for the rotelctl CLI.
//
// Two kinds of components live here. The run-once components (Header,
// Result, RenderPanel and the Printer that ties them together) print a
// styled block and return; rotelctl commands print a header, do their work,
// then print a result box or the front panel.
//
// MonitorModel is the interactive one: a Bubble Tea program that subscribes
// to a receiver's display state and redraws the front panel whenever it
// changes. Key bindings send the common commands (power, volume, mute,
// source stepping) through the same Controller the HTTP bridge uses.
//
// Logging is silent unless ROTEL_LOG_LEVEL is set, so zap output does not
// interleave with the rendered boxes.
package ui
