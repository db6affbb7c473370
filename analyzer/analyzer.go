// Package analyzer turns free-form replies into a structured AnalysisResult. Two strategies
// implement the Analyzer interface: Heuristic (keywords and regular expressions) and Oracle
// (a text-completion backend with Heuristic as its fallback)
package analyzer

import (
	"context"
)

// Sentiment of a reply
type Sentiment string

// Urgency of a reply
type Urgency string

// Source identifies the strategy that produced an AnalysisResult
type Source string

const (
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
	Negative Sentiment = "negative"
)

const (
	Low    Urgency = "low"
	Medium Urgency = "medium"
	High   Urgency = "high"
)

const (
	HeuristicSource Source = "heuristic"
	OracleSource    Source = "oracle"
)

// AnalysisResult holds the facts derived from one inbound message. HasDeadline is always equal to
// ExtractedDeadline != ""
type AnalysisResult struct {
	Sentiment         Sentiment `json:"sentiment"`
	Urgency           Urgency   `json:"urgency"`
	HasDeadline       bool      `json:"hasDeadline"`
	ExtractedDeadline string    `json:"extractedDeadline,omitempty"`

	ProgressIndicators []string `json:"progressIndicators,omitempty"`
	Challenges         []string `json:"challenges,omitempty"`
	Achievements       []string `json:"achievements,omitempty"`
	KeyTopics          []string `json:"keyTopics,omitempty"`
	ActionItems        []string `json:"actionItems,omitempty"`

	GoalsMentioned bool     `json:"goalsMentioned"`
	HasCurrency    bool     `json:"hasCurrency"`
	BusinessTerms  []string `json:"businessTerms,omitempty"`
	BusinessValue  string   `json:"businessValue,omitempty"`

	Source Source `json:"source"`
}

// Analyzer derives an AnalysisResult from a message. Implementations never fail: any internal
// error degrades to a best-effort result
type Analyzer interface {
	Analyze(ctx context.Context, message string) AnalysisResult

	ExtractDeadline(message string) (deadline string, ok bool)
}

// Degraded returns the result used when nothing can be decided about a message
func Degraded() AnalysisResult {
	return AnalysisResult{Sentiment: Neutral, Urgency: Medium, Source: HeuristicSource}
}

// setDeadline keeps HasDeadline consistent with ExtractedDeadline
func (r *AnalysisResult) setDeadline(deadline string) {
	r.ExtractedDeadline = deadline
	r.HasDeadline = deadline != ""
}
