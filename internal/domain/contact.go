package domain

import "strings"

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone converts a phone number to E.164. Numbers without a country
// code are assumed to belong to defaultCountry (digits only, e.g. "1").
// Returns false when the input cannot be a valid E.164 number.
func NormalizePhone(raw, defaultCountry string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	international := strings.HasPrefix(raw, "+")
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case international:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case defaultCountry == "1" && len(digits) == 11 && digits[0] == '1':
	case strings.HasPrefix(digits, "0") && defaultCountry != "":
		digits = defaultCountry + digits[1:]
	default:
		digits = defaultCountry + digits
	}

	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", false
	}
	return "+" + digits, true
}

// NormalizeContact applies the per-field normalization used before a
// resolved value is written to a lead.
func NormalizeContact(f ContactField, v, defaultCountry string) (string, bool) {
	v = strings.TrimSpace(v)
	switch f {
	case FieldEmail:
		v = NormalizeEmail(v)
		at := strings.LastIndex(v, "@")
		if at <= 0 || at == len(v)-1 {
			return "", false
		}
		return v, true
	case FieldPhone:
		return NormalizePhone(v, defaultCountry)
	}
	return v, v != ""
}
