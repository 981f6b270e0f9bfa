package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// DetermineLocale resolves a locale to use based on explicit query param, Accept-Language header,
// supported locales, and a default fallback. Supported values should be base tags like "en", "ar".
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	names := make([]string, 0, len(supported))
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		t, err := language.Parse(s)
		if err != nil {
			continue
		}
		names = append(names, strings.ToLower(s))
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		if def != "" {
			return strings.ToLower(def)
		}
		return "en"
	}
	matcher := language.NewMatcher(tags)

	pick := func(want []language.Tag) (string, bool) {
		if len(want) == 0 {
			return "", false
		}
		_, idx, conf := matcher.Match(want...)
		if conf == language.No {
			return "", false
		}
		return names[idx], true
	}

	if queryLang != "" {
		if t, err := language.Parse(queryLang); err == nil {
			if v, ok := pick([]language.Tag{t}); ok {
				return v
			}
		}
	}

	// ParseAcceptLanguage returns tags sorted by q-value; malformed headers are ignored.
	if acceptLang != "" {
		if want, _, err := language.ParseAcceptLanguage(acceptLang); err == nil {
			if v, ok := pick(want); ok {
				return v
			}
		}
	}

	for _, n := range names {
		if n == strings.ToLower(def) {
			return n
		}
	}
	// If def not in supported, pick first supported to avoid empty
	return names[0]
}
