// Package i18n provides internationalization support for locsync itself.
//
// It wraps the gotext library to provide simple T() and N() functions
// for translating locsync's user-facing strings. Translations are embedded
// in the binary via //go:embed and loaded at startup via Init().
//
// Usage:
//
//	import "github.com/minios-linux/locsync/i18n"
//
//	func main() {
//	    i18n.Init("")  // auto-detect from LOCSYNC_LANG, then the gettext variables
//	    fmt.Println(i18n.T("Hello, world!"))
//	    fmt.Println(i18n.N("Removed %d key", "Removed %d keys", count))
//	}
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// locales embeds the .po catalogs.
// Directory structure: locales/{lang}/LC_MESSAGES/locsync.po
//
//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name for locsync.
const domain = "locsync"

// po is the gotext locale object used for translations.
var po *gotext.Locale

// EnvLang overrides the detected interface language.
const EnvLang = "LOCSYNC_LANG"

// Init initializes the i18n system. If lang is empty, it auto-detects
// from LOCSYNC_LANG, then LANGUAGE, LC_ALL, LC_MESSAGES, LANG (the GNU
// gettext order).
//
// Init should be called once at program startup, before any T() or N() calls.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}

	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
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

// detectLanguage reads environment variables to determine the user's
// preferred language, following GNU gettext conventions.
func detectLanguage() string {
	// LOCSYNC_LANG picks the interface language without touching the
	// locale of the translated content, then GNU gettext priority:
	// LANGUAGE > LC_ALL > LC_MESSAGES > LANG
	for _, env := range []string{EnvLang, "LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
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
			// Skip "C" and "POSIX" - these mean no translation
			if val == "C" || val == "POSIX" || val == "" {
				continue
			}
			return val
		}
	}
	return "en"
}
