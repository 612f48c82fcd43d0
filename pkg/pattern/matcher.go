// Package pattern implements the output declaration mini-grammar.
//
// A declaration is a path that may embed extraction directives delimited by '#'.
// The text between the markers is a regular expression searched in the script output;
// every match is spliced back into the declaration in place of the directive. An
// optional "<n>#" right after the opening marker selects capture group n instead of the
// whole match. Inside a directive, "#any_path" stands for one or more path segments.
//
//	#any_path.png#           any absolute png path printed by the script
//	/tmp/#1#result=(\w+)#.txt  the word following "result=" as the file name
//
// Since a spliced match can contain a directive of its own, expansion runs a FIFO
// worklist until no directive is left. Directive-free results containing '*' are
// expanded with a glob.
package pattern

import (
	"fmt"
	"iter"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/dukex/filestage/pkg/glob"
)

const (
	DefaultMaxExpansions = 10000
	DefaultMatchTimeout  = 5 * time.Second
)

// Globber expands wildcard paths.
type Globber interface {
	Expand(pattern string) ([]string, error)
}

// Matcher resolves declarations against a block of text.
type Matcher struct {
	// Separator is the path separator of the host filesystem.
	Separator string
	// DriveLetters selects the root anchor of drive-letter filesystems.
	DriveLetters bool
	// MaxExpansions bounds the number of worklist items one declaration may produce.
	// Zero disables the bound.
	MaxExpansions int
	// MatchTimeout bounds a single regex search.
	MatchTimeout time.Duration

	Globber Globber

	compiled sync.Map
}

// NewMatcher returns a Matcher configured for the host filesystem.
func NewMatcher(globber Globber) *Matcher {
	if globber == nil {
		globber = glob.NewExpander("")
	}

	return &Matcher{
		Separator:     string(os.PathSeparator),
		DriveLetters:  runtime.GOOS == "windows",
		MaxExpansions: DefaultMaxExpansions,
		MatchTimeout:  DefaultMatchTimeout,
		Globber:       globber,
	}
}

// Match collects every path produced by Paths. On error the paths produced so far
// are returned together with the error.
func (m *Matcher) Match(declaration, text string) ([]string, error) {
	var paths []string

	for path, err := range m.Paths(declaration, text) {
		if err != nil {
			return paths, err
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// Paths lazily yields the concrete paths declaration resolves to against text.
// The sequence stops after the first error.
func (m *Matcher) Paths(declaration, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		queue := []string{declaration}
		processed := 0

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			processed++
			if m.MaxExpansions > 0 && processed > m.MaxExpansions {
				yield("", fmt.Errorf("%w: %q exceeded %d items", ErrTooManyExpansions, declaration, m.MaxExpansions))

				return
			}

			if d, ok := findDirective(current); ok {
				expanded, err := m.expand(current, d, text)
				if err != nil {
					yield("", err)

					return
				}

				queue = append(queue, expanded...)

				continue
			}

			if !glob.IsPattern(current) {
				if !yield(current, nil) {
					return
				}

				continue
			}

			matches, err := m.globber().Expand(current)
			if err != nil {
				yield("", err)

				return
			}

			for _, match := range matches {
				if !yield(match, nil) {
					return
				}
			}
		}
	}
}

// expand applies directive d of pattern to text and returns one new pattern per match.
func (m *Matcher) expand(pattern string, d directive, text string) ([]string, error) {
	re, err := m.compile(m.regex(d))
	if err != nil {
		return nil, err
	}

	var expanded []string

	match, err := re.FindStringMatch(text)
	for ; match != nil && err == nil; match, err = re.FindNextMatch(match) {
		group := match.GroupByNumber(d.group)
		if group == nil {
			return nil, fmt.Errorf("%w: group %d in %q", ErrGroupOutOfRange, d.group, d.body)
		}

		if len(group.Captures) == 0 {
			continue
		}

		expanded = append(expanded, pattern[:d.start]+group.String()+pattern[d.end+1:])
	}

	if err != nil {
		return nil, fmt.Errorf("match directive %q: %w", d.body, err)
	}

	return expanded, nil
}

// regex turns a directive body into a regular expression, expanding #any_path.
func (m *Matcher) regex(d directive) string {
	body := d.body

	if d.start == 0 && strings.HasPrefix(body, anyPathMacro) {
		body = m.rootAnchor() + body
	}

	return strings.ReplaceAll(body, anyPathMacro, m.anyPath())
}

func (m *Matcher) anyPath() string {
	return `(` + regexp2.Escape(m.Separator) + `([\w.\-]|(\\ ))+)+`
}

// rootAnchor matches what may precede the first separator of an absolute path:
// a home shorthand, or on drive-letter filesystems a drive or the home shorthand.
func (m *Matcher) rootAnchor() string {
	if m.DriveLetters {
		return `(([^\W\d_]:)|~)`
	}

	return `~?`
}

func (m *Matcher) globber() Globber {
	if m.Globber == nil {
		return glob.NewExpander("")
	}

	return m.Globber
}

func (m *Matcher) compile(expr string) (*regexp2.Regexp, error) {
	if cached, ok := m.compiled.Load(expr); ok {
		return cached.(*regexp2.Regexp), nil
	}

	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDirective, expr, err)
	}

	if m.MatchTimeout > 0 {
		re.MatchTimeout = m.MatchTimeout
	}

	m.compiled.Store(expr, re)

	return re, nil
}
