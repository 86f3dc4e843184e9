// Package rules persists rules reported by a reasoning backend and tracks
// how often predictions made under them were correct.
package rules

import (
	"strings"
	"time"
)

// Smoothing prior added to the observed counts. With one success in two
// trials a rule starts at confidence 0.5 before any observation.
const (
	PriorSuccesses = 1
	PriorTrials    = 2
)

// LearnedRule is a stored rule and its observation counts.
type LearnedRule struct {
	ID           string    `json:"rule_id"           yaml:"rule_id"`
	Description  string    `json:"description"       yaml:"description"`
	Pattern      string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Confidence   float64   `json:"confidence"        yaml:"confidence"`
	SuccessCount int       `json:"success_count"     yaml:"success_count"`
	AttemptCount int       `json:"attempt_count"     yaml:"attempt_count"`
	CreatedAt    time.Time `json:"created_at"        yaml:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"      yaml:"last_used_at"`
}

// Confidence is the smoothed success ratio of the counts.
func Confidence(successes, attempts int) float64 {
	return float64(successes+PriorSuccesses) / float64(attempts+PriorTrials)
}

// Normalize folds a description into the key used to match equivalent rules:
// lower case, single spaced, without trailing punctuation.
func Normalize(description string) string {
	s := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	return strings.TrimRight(s, ".;:!,")
}
