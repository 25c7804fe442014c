package solver

import (
	"regexp"
	"strings"
)

// conceptRule maps problem text to a display title. Rules are evaluated in
// priority order; the first match wins.
type conceptRule struct {
	match func(string) bool
	label string
}

func containsAny(terms ...string) func(string) bool {
	return func(text string) bool {
		for _, term := range terms {
			if strings.Contains(text, term) {
				return true
			}
		}
		return false
	}
}

var equationPattern = regexp.MustCompile(`\b[a-z]\s*[=<>]|solve\s+for\b`)

var conceptRules = []conceptRule{
	{containsAny("derivative", "differentiate", "integral", "integrate", "antiderivative"), "Calculus Problem"},
	{containsAny("limit of", "lim "), "Limits Problem"},
	{containsAny("matrix", "matrices", "determinant", "eigen", "vector space"), "Linear Algebra Problem"},
	{containsAny("probability", "dice", "coin flip", "at random", "expected value"), "Probability Problem"},
	{containsAny("sin(", "cos(", "tan(", "sine", "cosine", "tangent"), "Trigonometry Problem"},
	{containsAny("triangle", "circle", "rectangle", "angle", "perimeter", "area of", "volume of", "hypotenuse"), "Geometry Problem"},
	{containsAny("logarithm", "log(", "ln(", "exponent"), "Logarithms Problem"},
	{func(text string) bool {
		return containsAny("equation", "solve for", "variable", "polynomial", "quadratic", "inequality")(text) ||
			equationPattern.MatchString(text)
	}, "Algebra Problem"},
	{containsAny("fraction", "percent", "%", "ratio", "remainder", "divisible"), "Arithmetic Problem"},
	{containsAny("sequence", "series", "arithmetic progression", "geometric progression"), "Sequences Problem"},
}

// defaultTitle is the fallback when no concept matches.
const defaultTitle = "Math Problem"

// TitleFor derives a short display title from problem text via local concept
// matching. No model call involved.
func TitleFor(text string) string {
	lowered := strings.ToLower(text)
	for _, rule := range conceptRules {
		if rule.match(lowered) {
			return rule.label
		}
	}
	return defaultTitle
}
