// Package retention implements grandfather-father-son retention for
// snapshot sets.
//
// Each tier is a calendar membership test over one ascending snapshot
// list. The keep set is the union of the most recent N qualifiers per
// tier, so protection holds under sparse or irregular history without any
// stateful counting of elapsed runs.
package retention

import (
	"fmt"
	"time"

	"github.com/zfsync/zfsync/internal/zfs"
)

// Tier names used in plans and display output.
const (
	TierMonthly = "monthly"
	TierWeekly  = "weekly"
	TierDaily   = "daily"
)

// weeklyDay qualifies a snapshot for the weekly tier.
const weeklyDay = time.Monday

// Policy holds the number of snapshots each tier keeps. Tiers select
// independently: monthly matches snapshots taken on the first day of a
// month, weekly those taken on a Monday, daily matches every snapshot.
type Policy struct {
	Monthly int `yaml:"monthly"`
	Weekly  int `yaml:"weekly"`
	Daily   int `yaml:"daily"`
}

// Validate rejects negative tiers and the all-zero policy. An all-zero
// policy would prune every snapshot of every dataset, so it must be
// refused before any pipeline runs.
func (p Policy) Validate() error {
	if p.Monthly < 0 || p.Weekly < 0 || p.Daily < 0 {
		return fmt.Errorf("retention tiers must be non-negative, got monthly=%d weekly=%d daily=%d",
			p.Monthly, p.Weekly, p.Daily)
	}
	if p.Monthly == 0 && p.Weekly == 0 && p.Daily == 0 {
		return fmt.Errorf("retention policy keeps nothing: at least one tier must be positive")
	}
	return nil
}

// Plan partitions one dataset's snapshots into those retained and those to
// destroy. Keep and Prune preserve the input's ascending order and
// together cover the input exactly.
type Plan struct {
	Keep  []zfs.Snapshot
	Prune []zfs.Snapshot
	// Tiers maps each kept label to the tiers that retained it.
	Tiers map[string][]string
}

// PruneLabels returns the labels of the prune set, in ascending order.
func (p Plan) PruneLabels() []string {
	labels := make([]string, len(p.Prune))
	for i, s := range p.Prune {
		labels[i] = s.Label
	}
	return labels
}

// InvariantError reports a classification that would destroy every
// snapshot of a non-empty dataset. That can only come from a policy or
// logic defect, so the prune step must abort loudly instead of deleting.
type InvariantError struct {
	Policy Policy
	Input  int
}

var _ error = (*InvariantError)(nil)

func (e *InvariantError) Error() string {
	return fmt.Sprintf("retention kept 0 of %d snapshots under monthly=%d weekly=%d daily=%d",
		e.Input, e.Policy.Monthly, e.Policy.Weekly, e.Policy.Daily)
}

// Classify computes the keep and prune sets for snaps under p. The input
// must be in ascending creation order, as the listing commands return it,
// and already filtered to well-formed labels.
func Classify(snaps []zfs.Snapshot, p Policy) (Plan, error) {
	plan := Plan{Tiers: make(map[string][]string)}
	if len(snaps) == 0 {
		return plan, nil
	}

	var monthly, weekly []zfs.Snapshot
	for _, s := range snaps {
		if s.Time.Day() == 1 {
			monthly = append(monthly, s)
		}
		if s.Time.Weekday() == weeklyDay {
			weekly = append(weekly, s)
		}
	}

	kept := make(map[string]bool)
	mark := func(tier string, candidates []zfs.Snapshot, n int) {
		for _, s := range lastN(candidates, n) {
			kept[s.Label] = true
			plan.Tiers[s.Label] = append(plan.Tiers[s.Label], tier)
		}
	}
	mark(TierMonthly, monthly, p.Monthly)
	mark(TierWeekly, weekly, p.Weekly)
	mark(TierDaily, snaps, p.Daily)

	if len(kept) == 0 {
		return Plan{}, &InvariantError{Policy: p, Input: len(snaps)}
	}

	for _, s := range snaps {
		if kept[s.Label] {
			plan.Keep = append(plan.Keep, s)
		} else {
			plan.Prune = append(plan.Prune, s)
		}
	}
	return plan, nil
}

// lastN returns the n most recent entries of an ascending list, or all of
// them when fewer qualify.
func lastN(snaps []zfs.Snapshot, n int) []zfs.Snapshot {
	if n <= 0 {
		return nil
	}
	if len(snaps) <= n {
		return snaps
	}
	return snaps[len(snaps)-n:]
}
