package model

import "sort"

// RunDiff lists how the files of two crawl runs of the same site differ.
// Pages are matched by URL and compared by content hash. Pages that were
// not persisted in a run count as absent from it.
type RunDiff struct {
	// OldRunID and NewRunID identify the compared runs when they came from
	// the run database.
	OldRunID int64 `json:"old_run_id,omitempty"`
	NewRunID int64 `json:"new_run_id,omitempty"`

	// Added are pages only the newer run wrote.
	Added []PageRecord `json:"added"`

	// Removed are pages only the older run wrote.
	Removed []PageRecord `json:"removed"`

	// Changed are pages both runs wrote with different content.
	// The records are from the newer run.
	Changed []PageRecord `json:"changed"`

	// Unchanged is the number of pages with identical content.
	Unchanged int `json:"unchanged"`
}

// HasChanges reports whether the runs differ.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// DiffPages compares the persisted pages of two runs.
func DiffPages(oldPages, newPages []PageRecord) *RunDiff {
	diff := &RunDiff{
		Added:   make([]PageRecord, 0),
		Removed: make([]PageRecord, 0),
		Changed: make([]PageRecord, 0),
	}

	oldByURL := persistedByURL(oldPages)
	newByURL := persistedByURL(newPages)

	for url, np := range newByURL {
		op, ok := oldByURL[url]
		switch {
		case !ok:
			diff.Added = append(diff.Added, np)
		case op.Hash != np.Hash || op.Path != np.Path:
			diff.Changed = append(diff.Changed, np)
		default:
			diff.Unchanged++
		}
	}
	for url, op := range oldByURL {
		if _, ok := newByURL[url]; !ok {
			diff.Removed = append(diff.Removed, op)
		}
	}

	for _, list := range [][]PageRecord{diff.Added, diff.Removed, diff.Changed} {
		sort.Slice(list, func(i, j int) bool { return list[i].URL < list[j].URL })
	}
	return diff
}

func persistedByURL(pages []PageRecord) map[string]PageRecord {
	m := make(map[string]PageRecord, len(pages))
	for _, p := range pages {
		if p.Path != "" && !p.Failed() {
			m[p.URL] = p
		}
	}
	return m
}
