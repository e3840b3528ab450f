package interpret

import (
	"regexp"
	"strings"
	"unicode"
)

// numericPattern detects any digit run; one digit is enough for the answer to
// carry numeric content.
var numericPattern = regexp.MustCompile(`\d`)

// numberTokenPattern matches a number with its currency sign, thousands
// separators, decimals and an optional unit or scale word. Used to reduce an
// answer to its non-numeric skeleton.
var numberTokenPattern = regexp.MustCompile(
	`[$€£¥]?\d[\d,]*(?:\.\d+)?\s*(?:%|percent\b|bn\b|mm\b|[kmb]\b|thousand\b|million\b|billion\b|trillion\b)?`)

// NormalizeText lowercases s, drops punctuation and collapses whitespace.
// Decimal points between digits and the percent sign are kept so that "1.5"
// and "15", or "15%" and "15", stay distinct. Thousands separators between
// digits are dropped so "1,000" equals "1000".
func NormalizeText(s string) string {
	runes := []rune(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if r == '.' || r == ',' {
			betweenDigits := i > 0 && i < len(runes)-1 &&
				unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
			switch {
			case r == '.' && betweenDigits:
				b.WriteRune(r)
			case r == ',' && betweenDigits:
			default:
				b.WriteRune(' ')
			}
			continue
		}
		if unicode.IsPunct(r) && r != '%' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExactMatch reports whether gold and model are textually identical after
// case, whitespace and punctuation normalization.
func ExactMatch(gold, model string) bool {
	return NormalizeText(gold) == NormalizeText(model)
}

// HasNumericContent reports whether text contains any numeric value.
func HasNumericContent(text string) bool {
	return numericPattern.MatchString(text)
}

// NumericSkeleton replaces every number token in the normalized text with a
// placeholder, leaving only the words around the numbers.
func NumericSkeleton(text string) string {
	n := NormalizeText(text)
	return strings.Join(strings.Fields(numberTokenPattern.ReplaceAllString(n, " # ")), " ")
}

// NumericOnlyDivergence reports whether gold and model differ only in their
// numeric values: magnitude, scale or unit of the numbers, with identical
// surrounding wording. Both sides must carry numeric content.
func NumericOnlyDivergence(gold, model string) bool {
	if !HasNumericContent(gold) || !HasNumericContent(model) {
		return false
	}
	return NumericSkeleton(gold) == NumericSkeleton(model)
}
