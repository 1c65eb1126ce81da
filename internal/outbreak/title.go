package outbreak

import (
	"regexp"
	"strings"
)

var titlePattern = regexp.MustCompile(`^(\d{1,2} \w+ \d{4}): (.*)`)

// ParseTitle splits anchor text of the form "3 April 2024: Avian Influenza Outbreak"
// into its date string and title. Whitespace runs are collapsed first.
func ParseTitle(text string) (date string, title string, ok bool) {
	text = CollapseSpace(text)
	m := titlePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// CollapseSpace trims text and folds internal whitespace runs to one space.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
