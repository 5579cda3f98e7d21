package console

import (
	"fmt"
	"regexp"
	"strings"
)

// A Pattern locates a target inside buffered console text. Patterns are either
// literal substrings or regular expressions; both report the span of the
// earliest match so the session can consume exactly through it.
type Pattern interface {
	find(text string) (start, end int, ok bool)
	fmt.Stringer
}

// Text matches the given substring anywhere in the console output.
func Text(s string) Pattern {
	return literalPattern(s)
}

// Regexp matches the given regular expression against the console output.
// The pattern is compiled once; an invalid pattern causes a panic.
func Regexp(expr string) Pattern {
	return regexpPattern{re: regexp.MustCompile(expr)}
}

type literalPattern string

func (p literalPattern) find(text string) (int, int, bool) {
	idx := strings.Index(text, string(p))
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(p), true
}

func (p literalPattern) String() string {
	return fmt.Sprintf("text %q", string(p))
}

type regexpPattern struct {
	re *regexp.Regexp
}

func (p regexpPattern) find(text string) (int, int, bool) {
	loc := p.re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

func (p regexpPattern) String() string {
	return fmt.Sprintf("regexp %q", p.re.String())
}

// MatchResult is the outcome of one successful Expect call. Before holds the
// text consumed up to the match; Matched holds the matched text itself.
// Consumed text is never visible to a later Expect.
type MatchResult struct {
	Before  string
	Matched string
}

// Match applies a pattern to buffered text. On success it returns the match
// result and the unconsumed remainder. Session waits and scripted test
// consoles share this consumption rule.
func Match(pattern Pattern, text string) (MatchResult, string, bool) {
	start, end, ok := pattern.find(text)
	if !ok {
		return MatchResult{}, text, false
	}
	return MatchResult{Before: text[:start], Matched: text[start:end]}, text[end:], true
}
