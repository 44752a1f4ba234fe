package translate

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultSystemPrompt is the system prompt for translating JSON UI strings.
// {{sourceLang}} and {{targetLang}} are replaced with "<Name> (<tag>)".
const DefaultSystemPrompt = `You are a professional translator specializing in software and product localization. You are translating UI strings of an application from {{sourceLang}} to {{targetLang}}.

CONTEXT AWARENESS:
- The strings come from JSON locale files of a web or desktop application
- The audience is application users
- Tone: professional yet approachable, clear and concise
- Use IT/software terminology that is standard in the {{targetLang}} tech community

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in the target language, not word-for-word
- Use idiomatic expressions natural to {{targetLang}}, not literal translations
- Maintain the original tone and intent

TECHNICAL REQUIREMENTS:
- The input is a JSON object mapping short ids (T1, T2, ...) to source strings.
- Return ONLY a flat JSON object mapping exactly the same ids to the translated strings.
- Preserve interpolation placeholders exactly as-is ({{count}}, {name}, %s, %d, $t(key), etc.).
- Preserve HTML tags, leading/trailing whitespace and escaped newlines (\n).
- Keep brand names and proper nouns unchanged.
- Return ONLY the JSON object, no explanations or markdown code blocks.`

// LanguageLabel returns "<English name> (<tag>)" for a BCP-47 code, or the
// code itself when it cannot be parsed.
func LanguageLabel(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, code)
}

// SystemPrompt fills the language placeholders of prompt. An empty prompt
// selects DefaultSystemPrompt.
func SystemPrompt(prompt, sourceLang, targetLang string) string {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	r := strings.NewReplacer(
		"{{sourceLang}}", LanguageLabel(sourceLang),
		"{{targetLang}}", LanguageLabel(targetLang),
	)
	return r.Replace(prompt)
}

// UserPrompt renders the request for one batch: a JSON object of ids to
// escaped source strings plus the target language tag.
func UserPrompt(ids *IDMap, sourceLang, targetLang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the values of this JSON object from %s to %s.\n",
		LanguageLabel(sourceLang), LanguageLabel(targetLang))
	fmt.Fprintf(&b, "Target language tag: %s\n\n", targetLang)

	b.WriteString("{\n")
	for i, id := range ids.IDs() {
		t, _ := ids.Task(id)
		fmt.Fprintf(&b, "  \"%s\": \"%s\"", id, escapeForPrompt(t.SourceText))
		if i < ids.Len()-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n\n")
	fmt.Fprintf(&b, "Return a JSON object with exactly %d entries using the same ids.", ids.Len())
	return b.String()
}

// escapeForPrompt escapes backslashes and quotes and renders control
// characters as two-character escapes.
func escapeForPrompt(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
