package tui

import "strings"

// DiffEntry represents one filesystem change reported by zfs diff.
type DiffEntry struct {
	Path    string
	NewPath string // set for renames
	Change  byte   // 'M' modified, '+' created, '-' removed, 'R' renamed
}

// DiffResult contains the changes since a snapshot was taken.
type DiffResult struct {
	Label    string
	Entries  []DiffEntry
	Added    int
	Modified int
	Removed  int
	Renamed  int
}

// ParseDiff parses scripted zfs diff output (-H mode) into a DiffResult.
// Each line carries a change type and a path separated by a tab; renames
// carry the new path either as a third field or joined with " -> "
// depending on the zfs version. Lines that do not follow the format are
// skipped.
func ParseDiff(label, output string) *DiffResult {
	result := &DiffResult{Label: label}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		change, rest, ok := strings.Cut(line, "\t")
		if !ok || len(change) != 1 {
			continue
		}

		entry := DiffEntry{Change: change[0], Path: rest}
		switch entry.Change {
		case '+':
			result.Added++
		case '-':
			result.Removed++
		case 'M':
			result.Modified++
		case 'R':
			result.Renamed++
			if old, renamed, ok := strings.Cut(rest, "\t"); ok {
				entry.Path, entry.NewPath = old, renamed
			} else if old, renamed, ok := strings.Cut(rest, " -> "); ok {
				entry.Path, entry.NewPath = old, renamed
			}
		default:
			continue
		}

		result.Entries = append(result.Entries, entry)
	}

	return result
}
