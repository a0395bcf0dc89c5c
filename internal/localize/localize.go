// Package localize selects display names and flavor text across languages.
package localize

import "strings"

// Entry is one localized string tagged with its language code.
type Entry struct {
	Language string
	Value    string
}

// Names holds the resolved name per supported language. Every field is
// non-empty once resolved.
type Names struct {
	EN string `json:"en"`
	JA string `json:"ja"`
	ZH string `json:"zh"`
}

// Languages used by the policy.
const (
	LangEN     = "en"
	LangJA     = "ja"
	LangJAHrkt = "ja-hrkt"
	LangZHHans = "zh-hans"
	LangZHHant = "zh-hant"
)

var descriptionPreference = []string{LangZHHans, LangZHHant, LangJA, LangJAHrkt, LangEN}

// ResolveNames applies the fallback policy: english falls back to the slug,
// japanese prefers ja then ja-hrkt, chinese prefers zh-hans then zh-hant, and
// both fall back to the english result.
func ResolveNames(slug string, entries []Entry) Names {
	byLang := firstPerLanguage(entries)
	en := byLang[LangEN]
	if en == "" {
		en = slug
	}
	return Names{
		EN: en,
		JA: firstNonEmpty(byLang[LangJA], byLang[LangJAHrkt], en),
		ZH: firstNonEmpty(byLang[LangZHHans], byLang[LangZHHant], en),
	}
}

// DisplayName is the chinese name when present, otherwise the english one.
func DisplayName(n Names) string {
	if n.ZH != "" {
		return n.ZH
	}
	return n.EN
}

// Description picks flavor text by preference order zh-hans, zh-hant, ja,
// ja-hrkt, en, falling back to the first entry encountered. Form feeds and
// newlines become spaces.
func Description(entries []Entry) string {
	byLang := firstPerLanguage(entries)
	for _, lang := range descriptionPreference {
		if text := byLang[lang]; text != "" {
			return clean(text)
		}
	}
	for _, e := range entries {
		if e.Value != "" {
			return clean(e.Value)
		}
	}
	return ""
}

func firstPerLanguage(entries []Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		lang := strings.ToLower(strings.TrimSpace(e.Language))
		if lang == "" || e.Value == "" {
			continue
		}
		if _, seen := out[lang]; !seen {
			out[lang] = e.Value
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var flavorCleaner = strings.NewReplacer("\n", " ", "\f", " ")

func clean(text string) string {
	return flavorCleaner.Replace(text)
}
