package parser

import (
	"regexp"
	"strings"
)

// StripFences removes a markdown code fence wrapping the payload, with or
// without a language tag.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	firstNewline := strings.Index(trimmed, "\n")
	if firstNewline == -1 {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	body := trimmed[firstNewline+1:]
	if lastFence := strings.LastIndex(body, "```"); lastFence != -1 {
		body = body[:lastFence]
	}
	return strings.TrimSpace(body)
}

// SliceObject keeps the text from the first '{' to the last '}'.
func SliceObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// RemoveTrailingCommas drops commas that directly precede ']' or '}' outside
// string literals, repeating until nothing changes. Valid JSON is returned
// unchanged.
func RemoveTrailingCommas(s string) string {
	for {
		next := removeTrailingCommasOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func removeTrailingCommasOnce(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			sb.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			sb.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type substitution struct {
	pattern *regexp.Regexp
	replace string
}

var commaRepairs = []substitution{
	{regexp.MustCompile(`\}(\s*)\{`), "},$1{"},
	{regexp.MustCompile(`\](\s*)\[`), "],$1["},
	{regexp.MustCompile(`\}(\s*)"`), `},$1"`},
	{regexp.MustCompile(`\](\s*)"`), `],$1"`},
	{regexp.MustCompile(`"([ \t]*\r?\n\s*)"`), `",$1"`},
}

var aggressiveRepairs = []substitution{
	{regexp.MustCompile(`(\d|true|false|null)(\s+)"`), `$1,$2"`},
	{regexp.MustCompile(`"(\s+)"`), `",$1"`},
	{regexp.MustCompile(`"(\s*)([\[{])`), `",$1$2`},
	{regexp.MustCompile(`\}(\s*)\[`), "},$1["},
	{regexp.MustCompile(`\](\s*)\{`), "],$1{"},
	{regexp.MustCompile(`,(\s*,)+`), ","},
	{regexp.MustCompile(`([\[{])\s*,`), "$1"},
}

func apply(s string, subs []substitution) string {
	for _, sub := range subs {
		s = sub.pattern.ReplaceAllString(s, sub.replace)
	}
	return s
}

// InsertMissingCommas adds commas between adjacent values: a closing brace,
// bracket or quote directly followed by an opening one.
func InsertMissingCommas(s string) string {
	return apply(s, commaRepairs)
}

// InsertMissingCommasAggressive applies InsertMissingCommas plus broader
// value-boundary rules and collapses repeated or leading commas.
func InsertMissingCommasAggressive(s string) string {
	return apply(InsertMissingCommas(s), aggressiveRepairs)
}

// ExtractBalancedObject returns the first brace-balanced object, ignoring
// braces inside string literals.
func ExtractBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
