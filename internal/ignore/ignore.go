// Package ignore matches paths against .hindexignore rules. The file uses
// gitignore syntax: one pattern per line, # comments, ! negation, trailing
// slash for directory-only patterns, * ? and ** wildcards, leading slash to
// anchor at the source root.
package ignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileName is the ignore file the scanner looks for at the source root.
const FileName = ".hindexignore"

// Matcher holds compiled ignore rules. It is immutable once built, so
// Match is safe for concurrent use.
type Matcher struct {
	rules []rule
}

// rule is one compiled pattern. Later rules win, which is how negation
// re-includes a previously ignored path.
type rule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
}

// Load reads rules from the ignore file at path. A missing file yields an
// empty matcher, not an error; everything matches nothing.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return m, nil
}

// Parse compiles rules from r, one pattern per line.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// add compiles one pattern line. Blank lines and comments compile to
// nothing.
func (m *Matcher) add(pattern string) {
	// "\ " at the end keeps the space; everything after it would be
	// trimmed otherwise.
	escapedTrailingSpace := strings.HasSuffix(pattern, `\ `)

	pattern = strings.TrimSpace(pattern)
	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return
	}

	var r rule

	if strings.HasPrefix(pattern, `\#`) {
		pattern = strings.TrimPrefix(pattern, `\`)
	}
	if strings.HasPrefix(pattern, `\!`) {
		pattern = strings.TrimPrefix(pattern, `\`)
	} else if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	if escapedTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	// An internal slash anchors too: "docs/drafts" means /docs/drafts,
	// not **/docs/drafts.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + patternToRegex(pattern) + "$")
	m.rules = append(m.rules, r)
}

// Match reports whether path should be ignored. path is relative to the
// source root; the last matching rule decides.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}
	return ignored
}

// matchRule checks one rule. Directory-only patterns also match files
// inside the directory: "drafts/" ignores drafts/outline.md.
func matchRule(path string, isDir bool, r rule) bool {
	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		if r.dirOnly {
			// A parent directory may be the match.
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) {
		return true
	}
	if r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// patternToRegex converts a gitignore-style pattern to a regexp source.
func patternToRegex(pattern string) string {
	var out strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// **/ spans any number of directories.
					out.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				if i == 0 || pattern[i-1] == '/' {
					// Trailing or slash-bounded ** matches anything.
					out.WriteString(".*")
					i += 2
					continue
				}
			}
			out.WriteString("[^/]*")
			i++

		case '?':
			out.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				out.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			out.WriteString(string(c))
			i++
		}
	}

	return out.String()
}
