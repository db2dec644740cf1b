package services

import (
	"fmt"
	"strings"
	"unicode"
)

// writeKeywords may not appear outside literals in a generated query
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "COPY": true, "CALL": true, "EXEC": true,
	"EXECUTE": true, "ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
	"INTO": true, "LOCK": true, "SET": true, "LOAD": true, "HANDLER": true,
}

// GuardSQL accepts exactly one SELECT (optionally introduced by WITH) and
// returns it without comments or a trailing semicolon.
func GuardSQL(sql string) (string, error) {
	stripped, words, statements, err := scanSQL(sql)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}
	if len(words) == 0 {
		return "", ErrEmptySQL
	}
	if statements > 1 {
		return "", fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}

	first := words[0]
	if first != "SELECT" && first != "WITH" {
		return "", fmt.Errorf("%w: starts with %s", ErrNotReadOnly, first)
	}

	hasSelect := false
	for _, w := range words {
		if writeKeywords[w] {
			return "", fmt.Errorf("%w: contains %s", ErrNotReadOnly, w)
		}
		if w == "SELECT" {
			hasSelect = true
		}
	}
	if !hasSelect {
		return "", fmt.Errorf("%w: no SELECT", ErrNotReadOnly)
	}

	return stripped, nil
}

// scanSQL removes comments, upper-cases every bare word outside string
// literals and quoted identifiers, and counts statements.
func scanSQL(sql string) (string, []string, int, error) {
	var (
		out        strings.Builder
		words      []string
		word       strings.Builder
		statements int
		pending    bool // non-space content since the last ';'
	)

	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			out.WriteRune(' ')
			continue

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			flush()
			j := i + 2
			for ; j+1 < len(runes); j++ {
				if runes[j] == '*' && runes[j+1] == '/' {
					break
				}
			}
			if j+1 >= len(runes) {
				return "", nil, 0, fmt.Errorf("unterminated comment")
			}
			i = j + 1
			out.WriteRune(' ')
			continue

		case r == '\'' || r == '"' || r == '`':
			flush()
			j := i + 1
			for ; j < len(runes); j++ {
				if runes[j] == r {
					// Doubled quote is an escaped quote
					if j+1 < len(runes) && runes[j+1] == r {
						j++
						continue
					}
					break
				}
			}
			if j >= len(runes) {
				return "", nil, 0, fmt.Errorf("unterminated quote")
			}
			out.WriteString(string(runes[i : j+1]))
			pending = true
			i = j
			continue

		case r == ';':
			flush()
			if pending {
				statements++
				pending = false
			}
			continue
		}

		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			word.WriteRune(r)
		} else {
			flush()
		}
		if !unicode.IsSpace(r) {
			pending = true
		}
		out.WriteRune(r)
	}
	flush()
	if pending {
		statements++
	}

	return strings.TrimSpace(out.String()), words, statements, nil
}
