// Package normalize implements the canonical text normalization rules used
// by profile matching and duplicate detection. The output formats are part
// of the stored-data contract: grouping keys and match lookups built from
// these functions must stay stable across releases.
package normalize

import (
	"regexp"
	"strings"
)

var (
	nonDigits  = regexp.MustCompile(`[^0-9]`)
	whitespace = regexp.MustCompile(`\s+`)

	dobISO      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dobDMYSlash = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	dobYMDSlash = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	dobDMYDash  = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
)

// Phone strips every non-digit character and rewrites the Vietnamese
// country code prefix ("84...") to the domestic leading zero when the
// number is long enough to carry one. Blank input normalizes to "".
func Phone(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "84") && len(digits) >= 10 {
		digits = "0" + digits[2:]
	}
	return digits
}

// DOB rewrites the supported date layouts to yyyy-MM-dd. Unrecognized
// values pass through unchanged rather than erroring, since stored
// date-of-birth strings are free-form.
func DOB(dob string) string {
	if strings.TrimSpace(dob) == "" {
		return ""
	}
	dob = strings.TrimSpace(dob)

	switch {
	case dobISO.MatchString(dob):
		return dob
	case dobDMYSlash.MatchString(dob):
		parts := strings.Split(dob, "/")
		return parts[2] + "-" + parts[1] + "-" + parts[0]
	case dobYMDSlash.MatchString(dob):
		return strings.ReplaceAll(dob, "/", "-")
	case dobDMYDash.MatchString(dob):
		parts := strings.Split(dob, "-")
		return parts[2] + "-" + parts[1] + "-" + parts[0]
	}
	return dob
}

// Email trims and lowercases.
func Email(email string) string {
	if strings.TrimSpace(email) == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// Name strips Vietnamese diacritics, lowercases, trims, and collapses
// internal whitespace runs to a single space.
func Name(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	name = StripAccents(name)
	name = strings.ToLower(name)
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), " ")
	return name
}

// accentTable maps every accented Vietnamese letter to its base form.
var accentTable = buildAccentTable()

func buildAccentTable() map[rune]rune {
	table := make(map[rune]rune)
	groups := []struct {
		accented string
		base     rune
	}{
		{"àáạảãâầấậẩẫăằắặẳẵ", 'a'},
		{"èéẹẻẽêềếệểễ", 'e'},
		{"ìíịỉĩ", 'i'},
		{"òóọỏõôồốộổỗơờớợởỡ", 'o'},
		{"ùúụủũưừứựửữ", 'u'},
		{"ỳýỵỷỹ", 'y'},
		{"đ", 'd'},
		{"ÀÁẠẢÃÂẦẤẬẨẪĂẰẮẶẲẴ", 'A'},
		{"ÈÉẸẺẼÊỀẾỆỂỄ", 'E'},
		{"ÌÍỊỈĨ", 'I'},
		{"ÒÓỌỎÕÔỒỐỘỔỖƠỜỚỢỞỠ", 'O'},
		{"ÙÚỤỦŨƯỪỨỰỬỮ", 'U'},
		{"ỲÝỴỶỸ", 'Y'},
		{"Đ", 'D'},
	}
	for _, g := range groups {
		for _, r := range g.accented {
			table[r] = g.base
		}
	}
	return table
}

// StripAccents replaces accented Vietnamese characters with their ASCII
// base letters, preserving case. Characters outside the table pass through.
func StripAccents(text string) string {
	return strings.Map(func(r rune) rune {
		if base, ok := accentTable[r]; ok {
			return base
		}
		return r
	}, text)
}
