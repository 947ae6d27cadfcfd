// Package gemini adapts the Gemini API to the tutor.Gateway contract,
// mapping phase directives onto system instructions and parsing the model's
// JSON envelope into replies and phase-transition signals.
package gemini
