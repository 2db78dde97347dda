// Package retention decides which snapshots survive a cleanup.
//
// Two modes share the newest-first input produced by the index package:
// KeepNewest keeps a fixed number of snapshots, Classify applies tiered caps
// so that snapshot density decreases with age.
package retention

import (
	"time"

	"dosnap/internal/index"
)

type Tier int

const (
	None Tier = iota
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

// Tiers lists the retention tiers in the order Classify tries them.
var Tiers = []Tier{Hourly, Daily, Weekly, Monthly, Yearly}

func (t Tier) String() string {
	switch t {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "none"
	}
}

// Limits caps the number of snapshots kept per tier. A nil cap is unlimited,
// a zero cap disables the tier.
type Limits struct {
	Hourly  *int `yaml:"hourly,omitempty"`
	Daily   *int `yaml:"daily,omitempty"`
	Weekly  *int `yaml:"weekly,omitempty"`
	Monthly *int `yaml:"monthly,omitempty"`
	Yearly  *int `yaml:"yearly,omitempty"`
}

// Cap returns the cap of tier and whether it is bounded.
func (l Limits) Cap(t Tier) (int, bool) {
	var p *int
	switch t {
	case Hourly:
		p = l.Hourly
	case Daily:
		p = l.Daily
	case Weekly:
		p = l.Weekly
	case Monthly:
		p = l.Monthly
	case Yearly:
		p = l.Yearly
	default:
		return 0, true
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Decision is the verdict for one snapshot. Tier is the tier that kept it, or
// None when it is pruned or kept by count.
type Decision struct {
	Record index.Record
	Keep   bool
	Tier   Tier
}

// Classify walks records from newest to oldest and keeps a record under the
// first tier, in Tiers order, that still has room and for which the record
// opens a new calendar bucket relative to the previously kept record.
// Everything else is pruned. records must be ordered newest first.
func Classify(records []index.Record, limits Limits) []Decision {
	decisions := make([]Decision, len(records))
	counts := make(map[Tier]int, len(Tiers))
	var prev *time.Time

	for i, r := range records {
		decisions[i] = Decision{Record: r}
		for _, tier := range Tiers {
			if c, bounded := limits.Cap(tier); bounded && counts[tier] >= c {
				continue
			}
			if prev != nil && sameBucket(tier, *prev, r.Time) {
				continue
			}
			counts[tier]++
			decisions[i].Keep = true
			decisions[i].Tier = tier
			kept := r.Time
			prev = &kept
			break
		}
	}

	return decisions
}

// KeepNewest keeps the first n records and prunes the rest.
func KeepNewest(records []index.Record, n int) []Decision {
	decisions := make([]Decision, len(records))
	for i, r := range records {
		decisions[i] = Decision{Record: r, Keep: i < n}
	}
	return decisions
}

func Pruned(decisions []Decision) []Decision {
	var out []Decision
	for _, d := range decisions {
		if !d.Keep {
			out = append(out, d)
		}
	}
	return out
}

func Kept(decisions []Decision) []Decision {
	var out []Decision
	for _, d := range decisions {
		if d.Keep {
			out = append(out, d)
		}
	}
	return out
}

// CountByTier counts kept decisions per tier.
func CountByTier(decisions []Decision) map[Tier]int {
	counts := make(map[Tier]int)
	for _, d := range decisions {
		if d.Keep {
			counts[d.Tier]++
		}
	}
	return counts
}

func sameBucket(tier Tier, a, b time.Time) bool {
	switch tier {
	case Hourly:
		return a.Year() == b.Year() && a.YearDay() == b.YearDay() && a.Hour() == b.Hour()
	case Daily:
		return a.Year() == b.Year() && a.YearDay() == b.YearDay()
	case Weekly:
		ay, aw := a.ISOWeek()
		by, bw := b.ISOWeek()
		return ay == by && aw == bw
	case Monthly:
		return a.Year() == b.Year() && a.Month() == b.Month()
	case Yearly:
		return a.Year() == b.Year()
	}
	return true
}
