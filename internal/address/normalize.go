// Package address canonicalizes block and street names into dedup keys.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// streetAbbreviations expands the short forms used in resale listings.
var streetAbbreviations = map[string]string{
	"AVE":      "AVENUE",
	"ST":       "STREET",
	"RD":       "ROAD",
	"JLN":      "JALAN",
	"LOR":      "LORONG",
	"BLVD":     "BOULEVARD",
	"CL":       "CLOSE",
	"CRES":     "CRESCENT",
	"CT":       "COURT",
	"DR":       "DRIVE",
	"GR":       "GROVE",
	"LK":       "LINK",
	"PL":       "PLACE",
	"PK":       "PARK",
	"SQ":       "SQUARE",
	"TER":      "TERRACE",
	"TG":       "TANJONG",
	"BT":       "BUKIT",
	"UPP":      "UPPER",
	"CTRL":     "CENTRAL",
	"NTH":      "NORTH",
	"STH":      "SOUTH",
	"EST":      "ESTATE",
	"C'WEALTH": "COMMONWEALTH",
	"CWEALTH":  "COMMONWEALTH",
}

// maxFoldPasses bounds the NFKC/uppercase loop in fold.
const maxFoldPasses = 4

var (
	upper = cases.Upper(language.Und)

	// Typographic quotes show up in hand-edited sources ("C’WEALTH").
	quoteFolder = strings.NewReplacer("‘", "'", "’", "'", "ʼ", "'", "`", "'")

	blockPrefix = regexp.MustCompile(`^([0-9]+[A-Z]?)\s+(.+)$`)
)

// NormalizeStreet uppercases s, collapses whitespace, and expands known
// abbreviations word by word. Empty input yields "". The result is a fixed
// point: NormalizeStreet(NormalizeStreet(s)) == NormalizeStreet(s).
func NormalizeStreet(s string) string {
	words := fold(s)
	for i, w := range words {
		if full, ok := streetAbbreviations[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

// NormalizeBlock uppercases and trims a block identifier ("123a" -> "123A").
func NormalizeBlock(s string) string {
	return strings.Join(fold(s), " ")
}

// fold applies Unicode compatibility normalization, quote folding and
// uppercasing, then splits on whitespace. Uppercasing can leave decomposed
// sequences that NFKC composes again (and NFKC can yield lowercase), so
// both are repeated until the text is stable.
func fold(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for i := 0; i < maxFoldPasses; i++ {
		next := norm.NFKC.String(upper.String(norm.NFKC.String(s)))
		if next == s {
			break
		}
		s = next
	}
	s = quoteFolder.Replace(s)
	return strings.Fields(s)
}

// SplitFreeText separates a leading block number from a one-line address
// such as "123 ANG MO KIO AVE 3". ok is false when no block prefix is found.
func SplitFreeText(line string) (block, street string, ok bool) {
	s := strings.Join(fold(line), " ")
	m := blockPrefix.FindStringSubmatch(s)
	if m == nil {
		return "", s, false
	}
	return m[1], m[2], true
}
