// Package i18n provides the bilingual text value type used across all
// content and email entities. The site operates in English and Egyptian
// Arabic; English is the canonical language and every field is guaranteed
// to carry an English value, while the Arabic counterpart is optional.
package i18n

import "strings"

const (
	LangEnglish = "en"
	LangArabic  = "ar"

	// DefaultLang is used when a subscriber or request carries no
	// language preference.
	DefaultLang = LangEnglish
)

// LocalizedText holds an English/Arabic pair. The zero value is valid
// (both fields empty).
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar,omitempty"`
}

// Resolve returns the text for the requested language, falling back to
// English when the Arabic value is empty.
func (t LocalizedText) Resolve(lang string) string {
	if NormalizeLang(lang) == LangArabic && t.AR != "" {
		return t.AR
	}
	return t.EN
}

// IsEmpty reports whether both language values are empty.
func (t LocalizedText) IsEmpty() bool {
	return t.EN == "" && t.AR == ""
}

// NormalizeLang maps a raw language tag to one of the supported language
// codes. Region subtags ("ar-EG", "en-US") are stripped; anything
// unrecognized resolves to the default language.
func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case LangArabic:
		return LangArabic
	default:
		return DefaultLang
	}
}

// IsSupported reports whether lang is one of the supported language codes
// without applying the default fallback.
func IsSupported(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case LangEnglish, LangArabic:
		return true
	}
	return false
}
