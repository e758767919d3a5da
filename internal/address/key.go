package address

import "strings"

// Key identifies one physical address: the normalized block followed by the
// normalized street name, e.g. "123 ANG MO KIO AVENUE 3".
type Key string

// NewKey builds the dedup key for a block and raw street name.
func NewKey(block, street string) Key {
	b := NormalizeBlock(block)
	s := NormalizeStreet(street)
	switch {
	case b == "":
		return Key(s)
	case s == "":
		return Key(b)
	}
	return Key(b + " " + s)
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// IsZero reports whether the key carries no address at all.
func (k Key) IsZero() bool { return strings.TrimSpace(string(k)) == "" }

// Canonical reports whether k is already in normalized form. Keys produced by
// older tooling (unexpanded abbreviations, stray spaces) are not.
func (k Key) Canonical() bool {
	return string(k) == NormalizeStreet(string(k))
}
