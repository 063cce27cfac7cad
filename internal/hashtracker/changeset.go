package hashtracker

import "sort"

// ChangeSet partitions file paths by how their hash moved between two
// snapshots. Every slice is sorted.
type ChangeSet struct {
	Added     []string
	Changed   []string
	Deleted   []string
	Unchanged []string
}

// ComputeChangeSet compares the stored snapshot against the current one. It
// performs no I/O.
func ComputeChangeSet(existing, current map[string]string) ChangeSet {
	var cs ChangeSet
	for path, hash := range current {
		old, ok := existing[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, path)
		case old != hash:
			cs.Changed = append(cs.Changed, path)
		default:
			cs.Unchanged = append(cs.Unchanged, path)
		}
	}
	for path := range existing {
		if _, ok := current[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}
	sort.Strings(cs.Added)
	sort.Strings(cs.Changed)
	sort.Strings(cs.Deleted)
	sort.Strings(cs.Unchanged)
	return cs
}

// HasChanges reports whether any file was added, changed or deleted.
func (cs ChangeSet) HasChanges() bool {
	return len(cs.Added)+len(cs.Changed)+len(cs.Deleted) > 0
}

// UpToDate reports whether the corpus can skip every later phase.
func (cs ChangeSet) UpToDate() bool {
	return !cs.HasChanges() && len(cs.Unchanged) > 0
}

// Reparse returns the files whose content must be parsed again.
func (cs ChangeSet) Reparse() []string {
	out := make([]string, 0, len(cs.Added)+len(cs.Changed))
	out = append(out, cs.Added...)
	out = append(out, cs.Changed...)
	sort.Strings(out)
	return out
}

// Stale returns the files whose previous graph rows must be removed.
func (cs ChangeSet) Stale() []string {
	out := make([]string, 0, len(cs.Changed)+len(cs.Deleted))
	out = append(out, cs.Changed...)
	out = append(out, cs.Deleted...)
	sort.Strings(out)
	return out
}

// ForceAll moves every unchanged file into Changed, used when the stored
// embeddings or vector index can no longer be trusted.
func (cs ChangeSet) ForceAll() ChangeSet {
	out := cs
	out.Changed = append(append([]string(nil), cs.Changed...), cs.Unchanged...)
	sort.Strings(out.Changed)
	out.Unchanged = nil
	return out
}
