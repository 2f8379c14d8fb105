package lookup

import "fmt"

// Tier is the ordinal sales band an account falls into, derived at read
// time from its trailing twelve-month sales. Tiers are never persisted.
type Tier int

const (
	TierA Tier = iota // >= 10000
	TierB             // >= 5000
	TierC             // >= 1000
	TierD             // everything else
)

// Band lower bounds, inclusive. A value sitting exactly on a boundary
// belongs to the higher band.
const (
	tierAMin = 10000
	tierBMin = 5000
	tierCMin = 1000
)

// Tiers lists all bands from highest to lowest.
var Tiers = []Tier{TierA, TierB, TierC, TierD}

// FromSales classifies a trailing-sales value. Pure: same input, same band.
func FromSales(v float64) Tier {
	switch {
	case v >= tierAMin:
		return TierA
	case v >= tierBMin:
		return TierB
	case v >= tierCMin:
		return TierC
	default:
		return TierD
	}
}

func (t Tier) String() string {
	switch t {
	case TierA:
		return "A"
	case TierB:
		return "B"
	case TierC:
		return "C"
	case TierD:
		return "D"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier maps "A".."D" (either case) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "A", "a":
		return TierA, nil
	case "B", "b":
		return TierB, nil
	case "C", "c":
		return TierC, nil
	case "D", "d":
		return TierD, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}
