package analyzer

import (
	"context"
	"regexp"
	"strings"
)

var (
	positiveRegex     = regexp.MustCompile(`(?i)\b(great|excellent|successful|achieved|completed|good|progress|closed|won|shipped|launched|finished|done)`)
	negativeRegex     = regexp.MustCompile(`(?i)\b(problem|issue|failed|behind|difficult|stuck|challenge|blocked|miss|delayed)`)
	urgentRegex       = regexp.MustCompile(`(?i)\b(urgent|asap|emergency|critical|immediate)`)
	soonRegex         = regexp.MustCompile(`(?i)\b(soon|quickly|fast|rush|deadline|due|miss)`)
	progressRegex     = regexp.MustCompile(`(?i)\b(completed|finished|done|progress|started|shipped|launched)\b`)
	challengeRegex    = regexp.MustCompile(`(?i)\b(issues?|problems?|challenges?|difficult|stuck|blocked|behind|failed)\b`)
	achievementRegex  = regexp.MustCompile(`(?i)\b(achieved|closed|won|shipped|launched|signed|hit)\b`)
	goalRegex         = regexp.MustCompile(`(?i)\b(goals?|targets?|aim|objectives?)\b`)
	currencyRegex     = regexp.MustCompile(`(?i)(\$|\brevenue|\bprofit|\bdeals?\b|\bsales?\b)`)
	businessTermRegex = regexp.MustCompile(`(?i)(\$\d+(?:[,.]\d+)*[km]?|\b\d+%|\b\d+k\b|\b\d+m\b|\bdeal\b|\bcontract\b|\bclient\b|\brevenue\b|\bprofit\b|\btarget\b|\bgoal\b)`)
	actionItemRegex   = regexp.MustCompile(`(?i)\b(?:need to|have to|will|going to|plan to|must)\s+([^.;!?\n]+)`)
)

// Heuristic analyzes messages with fixed keyword sets and regular expressions
type Heuristic struct{}

// NewHeuristic returns a Heuristic analyzer
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Analyze implements Analyzer. When both positive and negative keywords appear, the sentiment
// is negative
func (h *Heuristic) Analyze(ctx context.Context, message string) (r AnalysisResult) {
	r = signals(message)
	r.Source = HeuristicSource
	r.Sentiment = sentiment(message)
	r.Urgency = urgency(message)

	r.ProgressIndicators = matches(progressRegex, message)
	r.Challenges = matches(challengeRegex, message)
	r.Achievements = matches(achievementRegex, message)
	r.KeyTopics = r.BusinessTerms
	r.ActionItems = actionItems(message)

	deadline, ok := ExtractDeadline(message)
	if !ok {
		deadline = deadlineWord(message)
	}
	r.setDeadline(deadline)

	return r
}

// ExtractDeadline implements Analyzer
func (h *Heuristic) ExtractDeadline(message string) (deadline string, ok bool) {
	return ExtractDeadline(message)
}

// signals computes the business and goal signals shared by every strategy
func signals(message string) (r AnalysisResult) {
	r.GoalsMentioned = goalRegex.MatchString(message)
	r.HasCurrency = currencyRegex.MatchString(message)
	r.BusinessTerms = matches(businessTermRegex, message)

	switch {
	case r.HasCurrency:
		r.BusinessValue = "high"
	case len(r.BusinessTerms) > 0:
		r.BusinessValue = "medium"
	default:
		r.BusinessValue = "low"
	}

	return r
}

func sentiment(message string) Sentiment {
	switch {
	case negativeRegex.MatchString(message):
		return Negative
	case positiveRegex.MatchString(message):
		return Positive
	default:
		return Neutral
	}
}

func urgency(message string) Urgency {
	switch {
	case urgentRegex.MatchString(message):
		return High
	case soonRegex.MatchString(message):
		return Medium
	default:
		return Low
	}
}

// matches returns the distinct lowercased matches of re in message, in order of appearance
func matches(re *regexp.Regexp, message string) []string {
	found := re.FindAllString(message, -1)
	if len(found) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	terms := make([]string, 0, len(found))
	for _, f := range found {
		t := strings.ToLower(strings.TrimSpace(f))
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}

	return terms
}

func actionItems(message string) []string {
	var items []string
	for _, m := range actionItemRegex.FindAllStringSubmatch(message, -1) {
		if item := strings.TrimSpace(strings.TrimRight(m[1], " ,")); item != "" {
			items = append(items, item)
		}
	}

	return items
}
