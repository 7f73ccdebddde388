// Package langmeta provides a shared language metadata registry
// (native names and emoji flags) used to render language selectors,
// detected languages and the supported-speech list in the CLI.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes language display metadata.
type Meta struct {
	Name string
	Flag string
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"af":    {Name: "Afrikaans", Flag: "🇿🇦"},
	"am":    {Name: "አማርኛ", Flag: "🇪🇹"},
	"ar":    {Name: "العربية", Flag: "🇸🇦"},
	"az":    {Name: "Azərbaycanca", Flag: "🇦🇿"},
	"be":    {Name: "Беларуская", Flag: "🇧🇾"},
	"bg":    {Name: "Български", Flag: "🇧🇬"},
	"bn":    {Name: "বাংলা", Flag: "🇧🇩"},
	"bs":    {Name: "Bosanski", Flag: "🇧🇦"},
	"ca":    {Name: "Català", Flag: "🇪🇸"},
	"cs":    {Name: "Čeština", Flag: "🇨🇿"},
	"cy":    {Name: "Cymraeg", Flag: "🇬🇧"},
	"da":    {Name: "Dansk", Flag: "🇩🇰"},
	"de":    {Name: "Deutsch", Flag: "🇩🇪"},
	"el":    {Name: "Ελληνικά", Flag: "🇬🇷"},
	"en":    {Name: "English", Flag: "🇺🇸"},
	"en-AU": {Name: "English (Australia)", Flag: "🇦🇺"},
	"en-GB": {Name: "English (UK)", Flag: "🇬🇧"},
	"en-US": {Name: "English (US)", Flag: "🇺🇸"},
	"es":    {Name: "Español", Flag: "🇪🇸"},
	"es-MX": {Name: "Español (México)", Flag: "🇲🇽"},
	"et":    {Name: "Eesti", Flag: "🇪🇪"},
	"eu":    {Name: "Euskara", Flag: "🇪🇸"},
	"fa":    {Name: "فارسی", Flag: "🇮🇷"},
	"fi":    {Name: "Suomi", Flag: "🇫🇮"},
	"fr":    {Name: "Français", Flag: "🇫🇷"},
	"fr-CA": {Name: "Français (Canada)", Flag: "🇨🇦"},
	"ga":    {Name: "Gaeilge", Flag: "🇮🇪"},
	"gl":    {Name: "Galego", Flag: "🇪🇸"},
	"gu":    {Name: "ગુજરાતી", Flag: "🇮🇳"},
	"he":    {Name: "עברית", Flag: "🇮🇱"},
	"hi":    {Name: "हिन्दी", Flag: "🇮🇳"},
	"hr":    {Name: "Hrvatski", Flag: "🇭🇷"},
	"hu":    {Name: "Magyar", Flag: "🇭🇺"},
	"hy":    {Name: "Հայերեն", Flag: "🇦🇲"},
	"id":    {Name: "Bahasa Indonesia", Flag: "🇮🇩"},
	"is":    {Name: "Íslenska", Flag: "🇮🇸"},
	"it":    {Name: "Italiano", Flag: "🇮🇹"},
	"ja":    {Name: "日本語", Flag: "🇯🇵"},
	"jw":    {Name: "Basa Jawa", Flag: "🇮🇩"},
	"ka":    {Name: "ქართული", Flag: "🇬🇪"},
	"kk":    {Name: "Қазақ тілі", Flag: "🇰🇿"},
	"km":    {Name: "ខ្មែរ", Flag: "🇰🇭"},
	"kn":    {Name: "ಕನ್ನಡ", Flag: "🇮🇳"},
	"ko":    {Name: "한국어", Flag: "🇰🇷"},
	"la":    {Name: "Latina", Flag: "🇻🇦"},
	"lt":    {Name: "Lietuvių", Flag: "🇱🇹"},
	"lv":    {Name: "Latviešu", Flag: "🇱🇻"},
	"mk":    {Name: "Македонски", Flag: "🇲🇰"},
	"ml":    {Name: "മലയാളം", Flag: "🇮🇳"},
	"mr":    {Name: "मराठी", Flag: "🇮🇳"},
	"ms":    {Name: "Bahasa Melayu", Flag: "🇲🇾"},
	"my":    {Name: "မြန်မာ", Flag: "🇲🇲"},
	"ne":    {Name: "नेपाली", Flag: "🇳🇵"},
	"nl":    {Name: "Nederlands", Flag: "🇳🇱"},
	"no":    {Name: "Norsk", Flag: "🇳🇴"},
	"pa":    {Name: "ਪੰਜਾਬੀ", Flag: "🇮🇳"},
	"pl":    {Name: "Polski", Flag: "🇵🇱"},
	"pt":    {Name: "Português", Flag: "🇵🇹"},
	"pt-BR": {Name: "Português (Brasil)", Flag: "🇧🇷"},
	"pt-PT": {Name: "Português (Portugal)", Flag: "🇵🇹"},
	"ro":    {Name: "Română", Flag: "🇷🇴"},
	"ru":    {Name: "Русский", Flag: "🇷🇺"},
	"si":    {Name: "සිංහල", Flag: "🇱🇰"},
	"sk":    {Name: "Slovenčina", Flag: "🇸🇰"},
	"sl":    {Name: "Slovenščina", Flag: "🇸🇮"},
	"sq":    {Name: "Shqip", Flag: "🇦🇱"},
	"sr":    {Name: "Српски", Flag: "🇷🇸"},
	"su":    {Name: "Basa Sunda", Flag: "🇮🇩"},
	"sv":    {Name: "Svenska", Flag: "🇸🇪"},
	"sw":    {Name: "Kiswahili", Flag: "🇰🇪"},
	"ta":    {Name: "தமிழ்", Flag: "🇮🇳"},
	"te":    {Name: "తెలుగు", Flag: "🇮🇳"},
	"th":    {Name: "ไทย", Flag: "🇹🇭"},
	"tl":    {Name: "Filipino", Flag: "🇵🇭"},
	"tr":    {Name: "Türkçe", Flag: "🇹🇷"},
	"uk":    {Name: "Українська", Flag: "🇺🇦"},
	"ur":    {Name: "اردو", Flag: "🇵🇰"},
	"uz":    {Name: "O'zbek", Flag: "🇺🇿"},
	"vi":    {Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh":    {Name: "中文", Flag: "🇨🇳"},
	"zh-CN": {Name: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {Name: "繁體中文", Flag: "🇹🇼"},
}

// AutoDetect is the pseudo-code for "detect the source language".
const AutoDetect = "auto"

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Canonical returns the normalized form of a language code: lower-case
// base, upper-case region, '-' separator. "auto" is kept as is.
func Canonical(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), AutoDetect) {
		return AutoDetect
	}
	return canonicalize(lang)
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: lang, Flag: ""}
}

// Label renders a language for display, e.g. "🇫🇷 Français (fr)".
// fallbackName is used when the registry has no entry, typically the
// English name reported by the backend.
func Label(lang, fallbackName string) string {
	if lang == AutoDetect {
		return "Auto-detect (auto)"
	}
	m := Resolve(lang)
	name := m.Name
	if name == lang && fallbackName != "" {
		name = fallbackName
	}
	if m.Flag == "" {
		return name + " (" + lang + ")"
	}
	return m.Flag + " " + name + " (" + lang + ")"
}

// Known reports whether lang, or its base language, has registry metadata.
func Known(lang string) bool {
	return Resolve(lang).Name != lang || Registry[lang].Name != ""
}

// Codes returns the registry codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for code := range Registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
