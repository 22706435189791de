package intake

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxShortLength caps titles, author names, options and selectors.
	MaxShortLength = 120
	// MaxContentLength caps page content.
	MaxContentLength = 10_000
	// MaxOptions is the number of option slots a submission form offers.
	MaxOptions = 4

	// DefaultAuthor names anonymous submissions.
	DefaultAuthor = "???"
	// DefaultTitle names untitled stories.
	DefaultTitle = "Untitled"
)

// normalizeShort trims, NFC-normalizes and truncates a single-line field.
func normalizeShort(value string) string {
	return truncate(strings.TrimSpace(norm.NFC.String(value)), MaxShortLength)
}

// normalizeContent unifies line endings and truncates. Leading and trailing
// whitespace is part of the content.
func normalizeContent(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	return truncate(norm.NFC.String(value), MaxContentLength)
}

func normalizeAuthor(value string) string {
	return withDefault(normalizeShort(value), DefaultAuthor)
}

func normalizeTitle(value string) string {
	return withDefault(normalizeShort(value), DefaultTitle)
}

// normalizeOptions reads at most MaxOptions slots and drops the blank ones.
func normalizeOptions(raw []string) []string {
	if len(raw) > MaxOptions {
		raw = raw[:MaxOptions]
	}
	options := make([]string, 0, len(raw))
	for _, value := range raw {
		if value = normalizeShort(value); value != "" {
			options = append(options, value)
		}
	}
	return options
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// truncate keeps at most limit runes.
func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	count := 0
	for i := range value {
		if count == limit {
			return value[:i]
		}
		count++
	}
	return value
}
