package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/rocketcrew/elonbot/slog"
	"github.com/spf13/cast"
)

const (
	analysisSystemPrompt = "You are a business analyst. Return only valid JSON."
	analysisTemperature  = 0.3
	analysisMaxTokens    = 500

	analysisPromptFormat = `Analyze this business response: %q

Return JSON only:
{
  "sentiment": "positive/neutral/negative",
  "urgency": "low/medium/high",
  "hasDeadline": true/false,
  "extractedDeadline": "the deadline exactly as written or null",
  "businessValue": "dollar amount if mentioned or null",
  "progressIndicators": ["specific progress mentioned"],
  "challenges": ["challenges or obstacles mentioned"],
  "achievements": ["completed items or successes"],
  "nextSteps": ["action items mentioned"],
  "keyMetrics": ["numbers, percentages, quantities mentioned"],
  "keyTopics": ["main business topics"]
}`
)

// Oracle analyzes messages with a text-completion backend and falls back to a Heuristic when
// the backend fails or answers with something that doesn't fit an AnalysisResult
type Oracle struct {
	completer oracle.Completer
	fallback  Analyzer
	logger    slog.SLogger
}

// NewOracle returns an Oracle analyzer using completer and falling back to a Heuristic
func NewOracle(completer oracle.Completer, logger slog.SLogger) *Oracle {
	return &Oracle{completer: completer, fallback: NewHeuristic(), logger: logger}
}

// Analyze implements Analyzer
func (o *Oracle) Analyze(ctx context.Context, message string) (r AnalysisResult) {
	text, err := o.completer.Complete(ctx, oracle.Request{
		SystemPrompt:    analysisSystemPrompt,
		UserPrompt:      fmt.Sprintf(analysisPromptFormat, message),
		Temperature:     analysisTemperature,
		MaxOutputTokens: analysisMaxTokens,
		JSON:            true,
	})
	if err == nil {
		r, err = decodeAnalysis(text, message)
	}

	if err != nil {
		o.logger.Printf("Analysis by oracle failed, using heuristics: %v", err)
		return o.fallback.Analyze(ctx, message)
	}

	return r
}

// ExtractDeadline implements Analyzer
func (o *Oracle) ExtractDeadline(message string) (deadline string, ok bool) {
	return ExtractDeadline(message)
}

// decodeAnalysis validates and coerces the oracle json answer into an AnalysisResult. Any shape
// mismatch is reported as a *oracle.MalformedOutputError
func decodeAnalysis(text string, message string) (r AnalysisResult, err error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(oracle.StripCodeFences(text)), &raw); err != nil {
		return r, &oracle.MalformedOutputError{Reason: "analysis is not a json object: " + err.Error(), Output: text}
	}

	r = signals(message)
	r.Source = OracleSource

	s, err := enumField(raw, "sentiment", map[string]string{"positive": string(Positive), "neutral": string(Neutral), "negative": string(Negative)})
	if err != nil {
		return r, err
	}
	r.Sentiment = Sentiment(s)

	u, err := enumField(raw, "urgency", map[string]string{"low": string(Low), "normal": string(Low), "medium": string(Medium), "high": string(High)})
	if err != nil {
		return r, err
	}
	r.Urgency = Urgency(u)

	hasDeadline := false
	if v, ok := raw["hasDeadline"]; ok && v != nil {
		if hasDeadline, err = cast.ToBoolE(v); err != nil {
			return r, malformedField("hasDeadline", err, text)
		}
	}

	for field, dest := range map[string]*[]string{
		"progressIndicators": &r.ProgressIndicators,
		"challenges":         &r.Challenges,
		"achievements":       &r.Achievements,
		"nextSteps":          &r.ActionItems,
		"keyTopics":          &r.KeyTopics,
	} {
		if *dest, err = stringList(raw[field]); err != nil {
			return r, malformedField(field, err, text)
		}
	}

	metrics, err := stringList(raw["keyMetrics"])
	if err != nil {
		return r, malformedField("keyMetrics", err, text)
	}
	r.KeyTopics = append(r.KeyTopics, metrics...)

	if v := raw["businessValue"]; v != nil {
		if bv := strings.TrimSpace(cast.ToString(v)); bv != "" && !strings.EqualFold(bv, "null") {
			r.BusinessValue = bv
		}
	}

	deadline := ""
	if v := raw["extractedDeadline"]; v != nil {
		deadline = strings.TrimSpace(cast.ToString(v))
		if strings.EqualFold(deadline, "null") {
			deadline = ""
		}
	}

	if deadline == "" && hasDeadline {
		if d, ok := ExtractDeadline(message); ok {
			deadline = d
		} else {
			deadline = deadlineWord(message)
		}
	}
	r.setDeadline(deadline)

	return r, nil
}

func enumField(raw map[string]interface{}, field string, allowed map[string]string) (value string, err error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", &oracle.MalformedOutputError{Reason: fmt.Sprintf("missing field [%s]", field)}
	}

	s, ok := v.(string)
	if !ok {
		return "", &oracle.MalformedOutputError{Reason: fmt.Sprintf("field [%s] is not a string", field)}
	}

	value, ok = allowed[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &oracle.MalformedOutputError{Reason: fmt.Sprintf("unexpected value [%s] for field [%s]", s, field)}
	}

	return value, nil
}

// stringList accepts a json array of scalars, a single string or null
func stringList(v interface{}) (list []string, err error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(t)}, nil
	case []interface{}:
		for _, e := range t {
			if _, isObject := e.(map[string]interface{}); isObject {
				return nil, errors.New("list element is an object")
			}

			s, err := cast.ToStringE(e)
			if err != nil {
				return nil, err
			}

			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		return list, nil
	default:
		return nil, errors.Errorf("expected a list but got %T", v)
	}
}

func malformedField(field string, err error, output string) error {
	return &oracle.MalformedOutputError{Reason: fmt.Sprintf("invalid field [%s]: %v", field, err), Output: output}
}
