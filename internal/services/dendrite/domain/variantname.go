package domain

import "strings"

// FirstVariantName is the name given to a page's first variant.
const FirstVariantName = "a"

// IncrementVariantName returns the successor of name in base-26 order over
// the letters a-z, the same sequence as spreadsheet columns:
//
//	"" -> "a", "a" -> "b", "z" -> "aa", "az" -> "ba", "zz" -> "aaa"
//
// Any character outside a-y carries like 'z'.
func IncrementVariantName(name string) string {
	if name == "" {
		return FirstVariantName
	}
	letters := []byte(name)
	for i := len(letters) - 1; i >= 0; i-- {
		if letters[i] >= 'a' && letters[i] < 'z' {
			letters[i]++
			return string(letters)
		}
		letters[i] = 'a'
	}
	return strings.Repeat("a", len(name)+1)
}

// IsVariantName reports whether name is a non-empty run of lowercase letters.
func IsVariantName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 'a' || name[i] > 'z' {
			return false
		}
	}
	return true
}

// CompareVariantNames orders names the way IncrementVariantName generates
// them: shorter names first, then lexically. Plain string order would place
// "z" after "aa".
func CompareVariantNames(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// LatestVariantName returns the greatest name in base-26 order, or "" when
// names is empty.
func LatestVariantName(names []string) string {
	latest := ""
	for _, name := range names {
		if latest == "" || CompareVariantNames(name, latest) > 0 {
			latest = name
		}
	}
	return latest
}
