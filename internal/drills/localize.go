package drills

import (
	"strings"
	"text/template"
)

// SupportedLanguages lists the languages drill content is translated into.
// Anything else falls back to English.
var SupportedLanguages = map[string]bool{
	"en": true,
	"es": true,
	"fr": true,
	"pt": true,
	"zh": true,
}

// Localizer resolves translation labels embedded in drill content, e.g.
// "{{.match_correct}}". Translations are loaded once alongside the catalog and
// injected into whatever needs them; there is no package-level cache.
type Localizer struct {
	// translations maps language -> label -> translated text.
	translations map[string]map[string]string
}

// NewLocalizer creates a Localizer from a language -> label -> text mapping.
func NewLocalizer(translations map[string]map[string]string) *Localizer {
	if translations == nil {
		translations = map[string]map[string]string{}
	}
	return &Localizer{translations: translations}
}

// Localize renders the message with the translation labels for lang. Unknown
// or empty languages fall back to English. Messages without template syntax
// pass through unchanged, as do messages that fail to parse. Translated texts
// may themselves carry placeholders, so rendering runs a second pass when the
// first one leaves template syntax behind.
func (l *Localizer) Localize(message, lang string, args ...map[string]string) string {
	if !strings.Contains(message, "{{") && len(args) == 0 {
		return message
	}
	data := map[string]string{}
	for label, text := range l.labelsFor(lang) {
		data[label] = text
	}
	for _, extra := range args {
		for k, v := range extra {
			data[k] = v
		}
	}
	out := renderOnce(message, data)
	if strings.Contains(out, "{{") {
		out = renderOnce(out, data)
	}
	return out
}

func renderOnce(message string, data map[string]string) string {
	tmpl, err := template.New("msg").Option("missingkey=zero").Parse(message)
	if err != nil {
		return message
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return message
	}
	return b.String()
}

func (l *Localizer) labelsFor(lang string) map[string]string {
	if lang == "" || !SupportedLanguages[lang] {
		lang = "en"
	}
	if labels, ok := l.translations[lang]; ok {
		return labels
	}
	return l.translations["en"]
}
