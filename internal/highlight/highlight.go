// Package highlight marks search matches inside rendered transcript text
// without disturbing the ANSI styling glamour already applied. Matching is
// case-insensitive and skips escape sequences, so a query never tears a
// color code apart.
package highlight

import (
	"regexp"
	"strings"
)

var csiSeq = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Result struct {
	Text      string
	Count     int
	LineIndex []int
}

// Apply wraps every occurrence of query in the styled text and reports how
// many matches landed on which lines, so the viewport can jump between them.
func Apply(input, query string, wrap func(string) string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Text: input}
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}

	var out strings.Builder
	res := Result{}
	for lineNo, line := range strings.SplitAfter(input, "\n") {
		marked, n := markLine(line, query, wrap)
		out.WriteString(marked)
		if n > 0 {
			res.Count += n
			res.LineIndex = append(res.LineIndex, lineNo)
		}
	}
	res.Text = out.String()
	return res
}

// markLine walks the line as alternating plain/escape segments; only plain
// segments participate in matching.
func markLine(line, query string, wrap func(string) string) (string, int) {
	escapes := csiSeq.FindAllStringIndex(line, -1)
	if len(escapes) == 0 {
		return markPlain(line, query, wrap)
	}

	var out strings.Builder
	total := 0
	pos := 0
	for _, esc := range escapes {
		marked, n := markPlain(line[pos:esc[0]], query, wrap)
		out.WriteString(marked)
		out.WriteString(line[esc[0]:esc[1]])
		total += n
		pos = esc[1]
	}
	marked, n := markPlain(line[pos:], query, wrap)
	out.WriteString(marked)
	total += n
	return out.String(), total
}

func markPlain(s, query string, wrap func(string) string) (string, int) {
	if s == "" {
		return s, 0
	}
	lower := strings.ToLower(s)
	q := strings.ToLower(query)

	var out strings.Builder
	count := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], q)
		if rel < 0 {
			break
		}
		at := pos + rel
		out.WriteString(s[pos:at])
		out.WriteString(wrap(s[at : at+len(q)]))
		count++
		pos = at + len(q)
	}
	if count == 0 {
		return s, 0
	}
	out.WriteString(s[pos:])
	return out.String(), count
}
