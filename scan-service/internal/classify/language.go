package classify

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage maps display names and BCP 47 tags ("ja-JP", "en") onto
// the language names the classifier prompt uses. Unknown names pass through.
func NormalizeLanguage(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return DefaultLanguage
	case "english":
		return DefaultLanguage
	case "japanese", languageJapanese:
		return languageJapanese
	}
	tag, err := language.Parse(name)
	if err != nil {
		return name
	}
	return nameForTag(tag, name)
}

// LanguageFromAcceptHeader picks the preferred supported language from an
// Accept-Language header, defaulting to DefaultLanguage.
func LanguageFromAcceptHeader(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	return nameForTag(tags[0], DefaultLanguage)
}

func nameForTag(tag language.Tag, fallback string) string {
	base, _ := tag.Base()
	switch base.String() {
	case "ja":
		return languageJapanese
	case "en":
		return DefaultLanguage
	}
	return fallback
}
