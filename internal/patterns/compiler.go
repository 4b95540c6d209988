// Package patterns provides grok-style regex composition and coordinate
// helpers shared by the weather decoders.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Format is a named message layout. Pattern may reference base patterns as
// {NAME}; captures are named groups.
type Format struct {
	Name    string
	Pattern string

	re *regexp.Regexp
}

// Compiler expands and compiles a set of formats.
type Compiler struct {
	base    map[string]string
	formats []Format
}

// NewCompiler returns a compiler for formats. Local patterns override the
// shared BasePatterns of the same name.
func NewCompiler(formats []Format, local map[string]string) *Compiler {
	c := &Compiler{
		base:    make(map[string]string, len(BasePatterns)+len(local)),
		formats: make([]Format, len(formats)),
	}
	for k, v := range BasePatterns {
		c.base[k] = v
	}
	for k, v := range local {
		c.base[k] = v
	}
	copy(c.formats, formats)
	return c
}

// Compile expands placeholders and compiles every format.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		re, err := regexp.Compile(c.Expand(c.formats[i].Pattern))
		if err != nil {
			return fmt.Errorf("compile format %s: %w", c.formats[i].Name, err)
		}
		c.formats[i].re = re
	}
	return nil
}

// Expand replaces every {NAME} placeholder with its base pattern.
func (c *Compiler) Expand(pattern string) string {
	for name, re := range c.base {
		pattern = strings.ReplaceAll(pattern, "{"+name+"}", re)
	}
	return pattern
}

// Match holds the named captures of one successful match.
type Match struct {
	Format   string
	Captures map[string]string
	// End is the offset just past the match in the searched text.
	End int
}

// Get returns a capture, or "" when the group did not participate.
func (m *Match) Get(name string) string {
	if m == nil {
		return ""
	}
	return m.Captures[name]
}

// Parse returns the first format matching text, or nil. Matching is done on
// the upper-cased text.
func (c *Compiler) Parse(text string) *Match {
	upper := strings.ToUpper(text)
	for _, f := range c.formats {
		if f.re == nil {
			continue
		}
		if loc := f.re.FindStringSubmatchIndex(upper); loc != nil {
			return captures(f, upper, loc)
		}
	}
	return nil
}

// FindAll returns every non-overlapping match of the named format.
func (c *Compiler) FindAll(text, format string) []*Match {
	upper := strings.ToUpper(text)
	for _, f := range c.formats {
		if f.Name != format || f.re == nil {
			continue
		}
		var out []*Match
		for _, loc := range f.re.FindAllStringSubmatchIndex(upper, -1) {
			out = append(out, captures(f, upper, loc))
		}
		return out
	}
	return nil
}

func captures(f Format, text string, loc []int) *Match {
	m := &Match{Format: f.Name, Captures: make(map[string]string), End: loc[1]}
	for i, name := range f.re.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		m.Captures[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return m
}
