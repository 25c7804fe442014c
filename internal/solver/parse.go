package solver

import (
	"regexp"
	"strings"
)

// Solution is the normalized answer/explanation record parsed from raw model
// output.
type Solution struct {
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// AnswerUnknown is the sentinel used when no answer could be extracted.
// Preferred over an empty field so the UI never renders a blank answer.
const AnswerUnknown = "Unable to determine the final answer"

// Marker-cleanup patterns. Applied to every parser output so no internal
// protocol syntax leaks into user-visible text, whatever tier produced it.
var markerPatterns = []*regexp.Regexp{
	// ===LIKE_THIS=== / == FINAL ANSWER == inline markers.
	regexp.MustCompile(`={2,}\s*[A-Z][A-Z0-9_]*(?:[ _][A-Z0-9_]+)*\s*={2,}`),
	// Dangling halves of a marker (truncated model output).
	regexp.MustCompile(`={2,}\s*[A-Z][A-Z0-9_]{2,}`),
	regexp.MustCompile(`[A-Z][A-Z0-9_]{2,}\s*={2,}`),
	// Bracketed protocol labels.
	regexp.MustCompile(`(?i)\[\s*(?:final[ _-]?)?(?:answer|explanation|solution)\s*\]`),
	// Hash-framed labels.
	regexp.MustCompile(`(?i)#{2,}\s*(?:final[ _-]?)?(?:answer|explanation|solution)\s*#*`),
	// Framing lines of repeated punctuation.
	regexp.MustCompile(`(?m)^\s*[=#\-]{3,}\s*$`),
}

// ParseSolution converts raw concatenated model output into a Solution.
// Three tiers are tried in priority order: strict delimiters, legacy labels,
// best-effort heuristics. The function is total: it never fails and both
// fields are always non-empty when raw text existed.
func ParseSolution(raw string) Solution {
	if sol, ok := parseStrict(raw); ok {
		return finalize(sol, raw)
	}
	if sol, ok := parseLabeled(raw); ok {
		return finalize(sol, raw)
	}
	return finalize(parseHeuristic(raw), raw)
}

func finalize(sol Solution, raw string) Solution {
	sol.Answer = cleanMarkers(sol.Answer)
	sol.Explanation = cleanMarkers(sol.Explanation)
	if sol.Explanation == "" && strings.TrimSpace(raw) != "" {
		sol.Explanation = cleanMarkers(raw)
	}
	if sol.Answer == "" {
		sol.Answer = AnswerUnknown
	}
	return sol
}

func cleanMarkers(s string) string {
	for _, p := range markerPatterns {
		s = p.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// parseStrict extracts the delimiter-bounded sections mandated by the solving
// prompt. A missing end marker is tolerated (truncated generation).
func parseStrict(raw string) (Solution, bool) {
	explanation, expOK := sectionBetween(raw, explanationStart, explanationEnd)
	answer, ansOK := sectionBetween(raw, answerStart, answerEnd)
	if !expOK && !ansOK {
		return Solution{}, false
	}
	return Solution{Answer: answer, Explanation: explanation}, true
}

func sectionBetween(raw, start, end string) (string, bool) {
	i := strings.Index(raw, start)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(start):]
	if j := strings.Index(rest, end); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

var (
	answerLabel      = regexp.MustCompile(`(?i)^\s*ANSWER\s*:\s*(.*)$`)
	explanationLabel = regexp.MustCompile(`(?i)^\s*EXPLANATION\s*:\s*(.*)$`)
)

// parseLabeled handles the legacy line-oriented format: leading ANSWER: or
// EXPLANATION: labels, with subsequent lines accumulating into the
// explanation until another label or end of text.
func parseLabeled(raw string) (Solution, bool) {
	var sol Solution
	var explanation []string
	found := false
	inExplanation := false

	for _, line := range strings.Split(raw, "\n") {
		if m := answerLabel.FindStringSubmatch(line); m != nil {
			if sol.Answer == "" {
				sol.Answer = strings.TrimSpace(m[1])
			}
			found = true
			inExplanation = false
			continue
		}
		if m := explanationLabel.FindStringSubmatch(line); m != nil {
			if rest := strings.TrimSpace(m[1]); rest != "" {
				explanation = append(explanation, rest)
			}
			found = true
			inExplanation = true
			continue
		}
		if inExplanation {
			explanation = append(explanation, line)
		}
	}

	if !found {
		return Solution{}, false
	}
	sol.Explanation = strings.TrimSpace(strings.Join(explanation, "\n"))
	return sol, true
}

var (
	answerIsPattern = regexp.MustCompile(`(?i)\bthe\s+answer\s+is\s*:?\s*([^\n.;]+)`)
	choicePattern   = regexp.MustCompile(`(?i)\b(?:correct|answer)\s*(?:option|choice|answer)?\s*(?:is|:)\s*\(?([A-E])\)?\b`)
	// A short standalone value line: "x = 4", "42", "3/4", "12.5 cm".
	standaloneAnswer = regexp.MustCompile(`^[(\[]?\s*(?:[A-Za-z]\s*=\s*\S[^\n]{0,38}|[-+]?\d[\d.,/ ]{0,20}[A-Za-z%°]{0,6})\s*[)\]]?$`)
)

// parseHeuristic is the last tier: the whole response becomes the
// explanation and the answer is pattern-searched out of it.
func parseHeuristic(raw string) Solution {
	sol := Solution{Explanation: strings.TrimSpace(raw)}

	if m := answerIsPattern.FindStringSubmatch(raw); m != nil {
		sol.Answer = strings.TrimSpace(m[1])
		return sol
	}
	if m := choicePattern.FindStringSubmatch(raw); m != nil {
		sol.Answer = strings.ToUpper(m[1])
		return sol
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if standaloneAnswer.MatchString(line) {
			sol.Answer = line
		}
		break
	}
	return sol
}
