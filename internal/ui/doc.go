// Package ui renders CLI output with lipgloss.
//
// [Palette] styles status lines and [ComparisonTable] renders the history listing used by `incommon history`.
package ui
