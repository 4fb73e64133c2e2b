package fingerprint

import (
	"sort"
	"strings"
	"unicode"
)

// SymbolDelta extracts definition-level identifiers from both sides
// and returns the added and removed sets, sorted. Extraction is
// lexical, not a parse: Go `func`/`type` declarations plus a C-style
// heuristic for `name(` definitions at statement level. Good enough
// to cross-check an explanation's touched_symbols claim.
func SymbolDelta(oldContent, newContent string) (added, removed []string) {
	oldSyms := extractSymbols(oldContent)
	newSyms := extractSymbols(newContent)

	for s := range newSyms {
		if !oldSyms[s] {
			added = append(added, s)
		}
	}
	for s := range oldSyms {
		if !newSyms[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func extractSymbols(content string) map[string]bool {
	syms := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if name := goSymbol(trimmed); name != "" {
			syms[name] = true
			continue
		}
		if name := cStyleSymbol(trimmed); name != "" {
			syms[name] = true
		}
	}
	return syms
}

// goSymbol matches `func Name(`, `func (r T) Name(` and `type Name `.
func goSymbol(line string) string {
	if rest, ok := strings.CutPrefix(line, "func "); ok {
		if strings.HasPrefix(rest, "(") {
			// method receiver; skip to the closing paren
			close := strings.Index(rest, ")")
			if close < 0 {
				return ""
			}
			rest = strings.TrimSpace(rest[close+1:])
		}
		return identPrefix(rest)
	}
	if rest, ok := strings.CutPrefix(line, "type "); ok {
		return identPrefix(rest)
	}
	return ""
}

// cStyleSymbol matches `ret name(args` definition lines: an
// identifier immediately followed by '(' with a type-ish token before
// it, excluding control-flow keywords and call sites ending in ';'.
func cStyleSymbol(line string) string {
	if line == "" || strings.HasSuffix(line, ";") || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
		return ""
	}
	open := strings.Index(line, "(")
	if open <= 0 {
		return ""
	}
	head := strings.TrimSpace(line[:open])
	fields := strings.Fields(head)
	if len(fields) < 2 {
		return ""
	}
	name := fields[len(fields)-1]
	// strip pointer/reference decoration
	name = strings.TrimLeft(name, "*&")
	if !isIdent(name) {
		return ""
	}
	switch name {
	case "if", "for", "while", "switch", "return", "catch":
		return ""
	}
	return name
}

func identPrefix(s string) string {
	end := 0
	for end < len(s) {
		c := rune(s[end])
		if unicode.IsLetter(c) || c == '_' || (end > 0 && unicode.IsDigit(c)) {
			end++
			continue
		}
		break
	}
	name := s[:end]
	if !isIdent(name) {
		return ""
	}
	return name
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if unicode.IsLetter(c) || c == '_' || (i > 0 && unicode.IsDigit(c)) {
			continue
		}
		return false
	}
	return true
}
