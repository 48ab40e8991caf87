package naming

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultModule is the module name for operations without tags.
const DefaultModule = "default"

// maxDisambiguation bounds the numeric suffix search.
const maxDisambiguation = 1000

// NormalizeIdentifier lowercases s, strips diacritics and replaces every
// run of characters outside [a-z0-9] with a single underscore. A leading digit is escaped with
// a "t_" prefix. An empty result becomes DefaultModule.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(stripMarks(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := b.String()
	if out == "" {
		return DefaultModule
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	return out
}

// stripMarks decomposes s and drops combining marks, so "Über" becomes
// "Uber". Runes without a decomposition are left as they are.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// foldASCII reduces a snake_case name to [a-z0-9_]. Runes that survive
// stripMarks outside that set become separators.
func foldASCII(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(stripMarks(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return cleanUnderscores(b.String())
}

// Disambiguate returns base if it is free, otherwise the first free
// "base_N" for N starting at 2. When maxLen is positive the base is
// shortened so that the suffixed name fits. The returned N is 0 when base
// was used unchanged. ok is false when no free name exists within the bound.
func Disambiguate(base string, maxLen int, taken func(string) bool) (name string, n int, ok bool) {
	if !taken(base) {
		return base, 0, true
	}
	for n = 2; n <= maxDisambiguation; n++ {
		suffix := "_" + strconv.Itoa(n)
		prefix := base
		if maxLen > 0 {
			room := maxLen - len(suffix)
			if room <= 0 {
				return "", n, false
			}
			if len(prefix) > room {
				prefix = strings.TrimRight(prefix[:room], "_")
			}
		}
		candidate := prefix + suffix
		if !taken(candidate) {
			return candidate, n, true
		}
	}
	return "", n, false
}
