package pattern

import (
	"strconv"
	"strings"
)

const (
	marker       = "#"
	anyPathMacro = "#any_path"
)

// directive is one #...# extraction instruction found in a declaration.
// start and end are the offsets of the opening and closing markers.
type directive struct {
	start int
	end   int
	group int
	body  string
}

// findDirective locates the first directive of pattern. It reports false when the
// pattern has no marker or the directive is never closed.
func findDirective(pattern string) (directive, bool) {
	start := strings.Index(pattern, marker)
	if start < 0 {
		return directive{}, false
	}

	group, bodyStart := parseGroupPrefix(pattern, start)

	// "#any_path#" is shorthand for "##any_path#": the marker doubles as the macro's own '#'
	bodyFrom := bodyStart + 1
	if strings.HasPrefix(pattern[bodyStart:], anyPathMacro) {
		bodyFrom = bodyStart
	}

	end := indexFrom(pattern, marker, bodyStart+1)
	for end >= 0 && strings.HasPrefix(pattern[end:], anyPathMacro) {
		end = indexFrom(pattern, marker, end+1)
	}

	if end < 0 {
		return directive{}, false
	}

	return directive{
		start: start,
		end:   end,
		group: group,
		body:  pattern[bodyFrom:end],
	}, true
}

// parseGroupPrefix reads an optional "<digits>#" right after the opening marker and
// returns the selected group and the offset of the marker preceding the regex body.
func parseGroupPrefix(pattern string, start int) (int, int) {
	i := start + 1
	for i < len(pattern) && pattern[i] >= '0' && pattern[i] <= '9' {
		i++
	}

	if i == start+1 || i >= len(pattern) || pattern[i] != marker[0] {
		return 0, start
	}

	group, err := strconv.Atoi(pattern[start+1 : i])
	if err != nil {
		group = -1
	}

	return group, i
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}

	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}

	return from + idx
}
