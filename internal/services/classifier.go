package services

import (
	"strings"
	"unicode"
)

// nonNumericPhrases mark questions whose answer is not a number. Each
// entry is matched as a whole-word sequence.
var nonNumericPhrases = []string{
	"какие", "какая", "каков", "каковы", "каким", "какими",
	"кто", "что", "где", "куда", "откуда", "почему", "зачем", "как", "когда",
	"назови", "перечисли", "покажи", "выведи", "расскажи", "опиши", "объясни", "дай",
	"топ", "список", "таблица", "рейтинг", "лучшие", "худшие", "последние", "первые",
	"чем", "кому", "кого",
	"о чем", "про что",
}

// QuestionClassifier rejects questions that ask for lists, names or
// explanations rather than a count or aggregate.
type QuestionClassifier struct {
	single  map[string]bool
	phrases [][]string
}

// NewQuestionClassifier builds a classifier over the default word list
// plus extra entries.
func NewQuestionClassifier(extra ...string) *QuestionClassifier {
	c := &QuestionClassifier{single: make(map[string]bool)}
	for _, p := range append(append([]string{}, nonNumericPhrases...), extra...) {
		words := tokenize(p)
		switch len(words) {
		case 0:
		case 1:
			c.single[words[0]] = true
		default:
			c.phrases = append(c.phrases, words)
		}
	}
	return c
}

// IsNonNumeric reports whether question contains a non-numeric marker
func (c *QuestionClassifier) IsNonNumeric(question string) bool {
	words := tokenize(question)
	for i, w := range words {
		if c.single[w] {
			return true
		}
		for _, phrase := range c.phrases {
			if hasPrefixWords(words[i:], phrase) {
				return true
			}
		}
	}
	return false
}

func hasPrefixWords(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}

// tokenize lower-cases s, folds ё into е and splits on anything that is
// not a letter or digit.
func tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "ё", "е")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
