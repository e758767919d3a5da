package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStreet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123 ANG MO KIO AVE 3", "123 ANG MO KIO AVENUE 3"},
		{"ang mo kio ave 3", "ANG MO KIO AVENUE 3"},
		{"  BISHAN   ST 13 ", "BISHAN STREET 13"},
		{"JLN BT MERAH", "JALAN BUKIT MERAH"},
		{"C'WEALTH CRES", "COMMONWEALTH CRESCENT"},
		{"C’WEALTH DR", "COMMONWEALTH DRIVE"},
		{"UPP BOON KENG RD", "UPPER BOON KENG ROAD"},
		{"LOR 1 TOA PAYOH", "LORONG 1 TOA PAYOH"},
		{"ＡＶＥ 1", "AVENUE 1"}, // full-width letters
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStreet(tt.in))
		})
	}
}

func TestNormalizeStreet_Idempotent(t *testing.T) {
	inputs := []string{
		"123 ANG MO KIO AVE 3",
		"tg pagar plaza",
		"C'WEALTH CL",
		"bt batok west ave 6",
		"EST",
		// Uppercasing yields a decomposed sequence that NFKC recomposes.
		"ΐ ST",
		"ª RD",
		"ﬁsher ave",
		"ǅ\u00a0ST",
	}
	for _, in := range inputs {
		once := NormalizeStreet(in)
		assert.Equal(t, once, NormalizeStreet(once), "input %q", in)
	}
}

func TestNormalizeStreet_ComposedAfterUppercase(t *testing.T) {
	got := NormalizeStreet("ΐ ST")
	assert.Equal(t, "\u03aa\u0301 STREET", got)
	assert.True(t, Key(got).Canonical())
}

func TestNormalizeStreet_AbbreviatedAndExpandedAgree(t *testing.T) {
	assert.Equal(t, NormalizeStreet("Yishun Ave 11"), NormalizeStreet("YISHUN AVENUE 11"))
	assert.Equal(t, NormalizeStreet("HOUGANG ST 21"), NormalizeStreet("hougang street 21"))
}

func TestNormalizeStreet_OnlyWholeWords(t *testing.T) {
	// "STREET" contains "ST" but must not be touched; "DRIVE" stays as is.
	assert.Equal(t, "MARINE DRIVE", NormalizeStreet("MARINE DRIVE"))
	assert.Equal(t, "STIRLING ROAD", NormalizeStreet("STIRLING RD"))
}

func TestNewKey(t *testing.T) {
	assert.Equal(t, Key("10 BISHAN STREET"), NewKey("10", "bishan st"))
	assert.Equal(t, NewKey("10", "BISHAN ST"), NewKey(" 10 ", "BISHAN STREET"))
	assert.Equal(t, Key("406A FERNVALE ROAD"), NewKey("406a", "fernvale rd"))
	assert.Equal(t, Key("BISHAN STREET"), NewKey("", "BISHAN ST"))
	assert.True(t, NewKey("", "").IsZero())
}

func TestKey_Canonical(t *testing.T) {
	assert.True(t, NewKey("10", "BISHAN ST").Canonical())
	assert.False(t, Key("10 BISHAN ST").Canonical())
	assert.False(t, Key("10  BISHAN STREET").Canonical())
}

func TestSplitFreeText(t *testing.T) {
	block, street, ok := SplitFreeText("123 ang mo kio ave 3")
	assert.True(t, ok)
	assert.Equal(t, "123", block)
	assert.Equal(t, "ANG MO KIO AVE 3", street)

	block, _, ok = SplitFreeText("406A FERNVALE RD")
	assert.True(t, ok)
	assert.Equal(t, "406A", block)

	_, street, ok = SplitFreeText("BISHAN ST")
	assert.False(t, ok)
	assert.Equal(t, "BISHAN ST", street)
}
