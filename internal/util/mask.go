package util

import "strings"

// MaskEmail enmascara un email para logs: conserva la primera letra del
// usuario y del dominio. "ana@parroquia.org" → "a…@p…org".
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	i := strings.IndexByte(s, '@')
	if i <= 0 {
		// no parece un email; mostramos lo mínimo
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}

	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts) > 0 && len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}
