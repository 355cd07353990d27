package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldSearch lowercases s and strips diacritics so "Nguyễn Văn Đức" and
// "nguyen van duc" compare equal.
func FoldSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	// đ/Đ is a distinct letter, not a combining mark.
	folded = strings.NewReplacer("đ", "d", "Đ", "D").Replace(folded)
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
