// Package ui holds the terminal styling shared by the CLI.
//
// A single lipgloss [Palette] defines title, success, error, warning and help styles. Helpers such as
// [JobStatus] and [OperationStatus] map queue and orchestrator states onto it so every command colours
// them the same way.
package ui
