package enrich

import (
	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/coords"
	"github.com/sells-group/resale-enrich/internal/locache"
)

// State is the lifecycle of one unique address within a run.
type State int

// Address states.
const (
	StateUnseen State = iota
	StateCached
	StateNeedsProximity
	StateNeedsGeocode
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCached:
		return "cached"
	case StateNeedsProximity:
		return "needs_proximity"
	case StateNeedsGeocode:
		return "needs_geocode"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unseen"
	}
}

// Address is one unique address awaiting resolution.
type Address struct {
	Key    address.Key
	Block  string
	Street string
	State  State
	Coords *coords.Point
}

// Query is the one-line search string sent to the geocoder.
func (a Address) Query() string {
	return a.Key.String()
}

// Plan partitions a run's unique addresses.
type Plan struct {
	Records       int
	Invalid       int
	Unique        int
	Cached        []address.Key
	ProximityOnly []Address
	FullGeocode   []Address
}

// Pending returns every address that needs network calls, proximity-only
// addresses first.
func (p Plan) Pending() []Address {
	out := make([]Address, 0, len(p.ProximityOnly)+len(p.FullGeocode))
	out = append(out, p.ProximityOnly...)
	return append(out, p.FullGeocode...)
}

// EstimatedCalls is one station lookup per proximity-only address and a
// geocode plus lookup per remaining address.
func (p Plan) EstimatedCalls() int {
	return len(p.ProximityOnly) + 2*len(p.FullGeocode)
}

// CallsSavedByCoordinates is the geocode calls skipped thanks to the
// coordinate table.
func (p Plan) CallsSavedByCoordinates() int {
	return len(p.ProximityOnly)
}

// BuildPlan deduplicates the records' addresses and partitions them against
// the cache and coordinate table. Order follows first appearance.
func BuildPlan(records []Record, cache *locache.Cache, table *coords.Table) Plan {
	p := Plan{Records: len(records)}
	seen := make(map[address.Key]bool, len(records))

	for _, r := range records {
		key := r.Key()
		if key.IsZero() {
			p.Invalid++
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		p.Unique++

		if cache != nil && cache.Has(key) {
			p.Cached = append(p.Cached, key)
			continue
		}

		a := Address{
			Key:    key,
			Block:  address.NormalizeBlock(r.Block),
			Street: address.NormalizeStreet(r.Street),
		}
		if pt, ok := table.Lookup(key); ok {
			pt := pt
			a.Coords = &pt
			a.State = StateNeedsProximity
			p.ProximityOnly = append(p.ProximityOnly, a)
			continue
		}
		a.State = StateNeedsGeocode
		p.FullGeocode = append(p.FullGeocode, a)
	}
	return p
}
