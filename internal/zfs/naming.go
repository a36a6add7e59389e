// Package zfs names snapshots and drives the zfs command line tool,
// locally and over ssh.
package zfs

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// labelPrefix marks snapshots owned by this tool. Snapshots named by
	// anything else are invisible to listing, pruning and base selection.
	labelPrefix = "snap-"

	labelLayout = "2006-01-02T15:04:05"
)

// labelPattern pins the exact shape of a label. time.Parse alone is too
// lenient (it accepts un-padded fields), and the labels must stay
// fixed-width so lexicographic order equals chronological order.
var labelPattern = regexp.MustCompile(`^snap-\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

// MakeLabel formats t as a snapshot label, second resolution.
func MakeLabel(t time.Time) string {
	return labelPrefix + t.Format(labelLayout)
}

// ParseLabel returns the timestamp encoded in a snapshot label.
func ParseLabel(label string) (time.Time, error) {
	if !labelPattern.MatchString(label) {
		return time.Time{}, fmt.Errorf("not a snapshot label: %q", label)
	}
	t, err := time.ParseInLocation(labelLayout, strings.TrimPrefix(label, labelPrefix), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a snapshot label: %q: %w", label, err)
	}
	return t, nil
}

// IsSnapshotLabel reports whether name is a well-formed snapshot label.
// This is the single filter applied to every snapshot listing.
func IsSnapshotLabel(name string) bool {
	_, err := ParseLabel(name)
	return err == nil
}

// Snapshot is one snapshot of one dataset, identified as dataset@label.
type Snapshot struct {
	Dataset string
	Label   string
	Time    time.Time
}

// Name returns the full zfs identifier, dataset@label.
func (s Snapshot) Name() string {
	return s.Dataset + "@" + s.Label
}

// ParseSnapshotName parses a dataset@label identifier. It returns false
// for identifiers whose label does not match the naming scheme; callers
// use this to drop foreign snapshots from listings.
func ParseSnapshotName(name string) (Snapshot, bool) {
	dataset, label, ok := strings.Cut(name, "@")
	if !ok || dataset == "" {
		return Snapshot{}, false
	}
	t, err := ParseLabel(label)
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{Dataset: dataset, Label: label, Time: t}, true
}
