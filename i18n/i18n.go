// Package i18n translates the leeplate CLI's own messages: prompts, REPL
// diagnostics and command output. The text being translated by the backend
// never passes through here.
//
// Catalogs are gettext .po files embedded from locales/{lang}/LC_MESSAGES/.
// The UI language comes from $LEEPLATE_UI_LANG when set, otherwise from the
// usual gettext variables. Unknown languages fall back to the English
// msgids.
//
//	i18n.Init("")
//	logError(i18n.T("Translation failed"))
//	logInfo(i18n.N("%d language", "%d languages", n), n)
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// locales embeds the compiled .po/.mo translation files.
// Directory structure: locales/{lang}/LC_MESSAGES/leeplate.po
//
//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name for leeplate.
const domain = "leeplate"

// EnvUILang overrides the UI language, e.g. LEEPLATE_UI_LANG=ru.
const EnvUILang = "LEEPLATE_UI_LANG"

var (
	po   *gotext.Locale
	lang string
)

// Init loads the catalog for code, or for the detected language when code
// is empty. Call it once at startup, before any T() or N() calls.
func Init(code string) {
	if code == "" {
		code = detectLanguage()
	}
	lang = code

	po = gotext.NewLocaleFSWithPath(code, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Lang returns the language passed to or detected by Init, "" before Init.
func Lang() string {
	return lang
}

// Available lists the languages with an embedded catalog, sorted.
func Available() []string {
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := fs.Stat(locales, "locales/"+e.Name()+"/LC_MESSAGES/"+domain+".po"); err == nil {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// T translates a string. If no translation is available, returns the
// original string unchanged (standard gettext passthrough behavior).
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a string with plural forms. The singular form is used
// when n == 1, the plural form otherwise (exact rules depend on the
// target language's plural formula).
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage picks the UI language: LEEPLATE_UI_LANG, then the GNU
// gettext order LANGUAGE > LC_ALL > LC_MESSAGES > LANG, then "en".
func detectLanguage() string {
	for _, env := range []string{EnvUILang, "LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if val := os.Getenv(env); val != "" {
			// LANGUAGE can be a colon-separated list; take the first
			if env == "LANGUAGE" {
				parts := strings.SplitN(val, ":", 2)
				val = parts[0]
			}
			// Strip encoding suffix (e.g. "ru_RU.UTF-8" -> "ru_RU")
			if idx := strings.IndexByte(val, '.'); idx >= 0 {
				val = val[:idx]
			}
			// "C" and "POSIX" mean no translation
			if val == "C" || val == "POSIX" || val == "" {
				continue
			}
			return val
		}
	}
	return "en"
}
