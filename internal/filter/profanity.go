// Package filter 提供文本内容审核
package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ContentFilter 判断文本是否包含禁止内容
type ContentFilter interface {
	ContainsProhibited(text string) bool
}

// WordFilter 基于词表的过滤器。比较前去掉变音符号并做大小写折叠，
// 所以 "Palavrão" 与 "PALAVRAO" 视为同一个词。
type WordFilter struct {
	words   map[string]struct{}
	phrases []string
}

func NewWordFilter(words []string) *WordFilter {
	f := &WordFilter{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		n := normalize(w)
		if n == "" {
			continue
		}
		if strings.Contains(n, " ") {
			f.phrases = append(f.phrases, n)
			continue
		}
		f.words[n] = struct{}{}
	}
	return f
}

func (f *WordFilter) ContainsProhibited(text string) bool {
	if len(f.words) == 0 && len(f.phrases) == 0 {
		return false
	}
	n := normalize(text)
	tokens := strings.FieldsFunc(n, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return true
		}
	}
	if len(f.phrases) > 0 {
		joined := " " + strings.Join(tokens, " ") + " "
		for _, p := range f.phrases {
			if strings.Contains(joined, " "+p+" ") {
				return true
			}
		}
	}
	return false
}

var folder = cases.Fold()

func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(folder.String(out)), " ")
}
