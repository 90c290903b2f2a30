package models

import "sort"

// DiscoveryEntry is the per-logical-name state of discovery: either a
// single processable candidate or a group of conflicting duplicate paths.
// The duplicate form is sticky: once a name is demoted it never becomes a
// candidate again, no matter how many further copies arrive.
type DiscoveryEntry struct {
	Candidate      *CandidateFile
	DuplicatePaths []string
}

// IsDuplicate reports whether the entry has been demoted to a duplicate
// group.
func (e *DiscoveryEntry) IsDuplicate() bool {
	return e.Candidate == nil
}

// Discovery accumulates listing entries keyed by logical file name and
// performs retroactive duplicate detection.
type Discovery struct {
	entries map[string]*DiscoveryEntry
}

func NewDiscovery() *Discovery {
	return &Discovery{entries: make(map[string]*DiscoveryEntry)}
}

// Add records one parsed listing entry. A second path observed for an
// already-seen name demotes the existing candidate: both paths move into
// the duplicate group and the name stops being processable.
func (d *Discovery) Add(c CandidateFile) {
	entry, ok := d.entries[c.FileName]
	if !ok {
		d.entries[c.FileName] = &DiscoveryEntry{Candidate: &c}
		return
	}
	if entry.IsDuplicate() {
		entry.DuplicatePaths = append(entry.DuplicatePaths, c.Path)
		return
	}
	entry.DuplicatePaths = []string{entry.Candidate.Path, c.Path}
	entry.Candidate = nil
}

// Candidates returns the surviving unique candidates keyed by file name.
func (d *Discovery) Candidates() map[string]CandidateFile {
	out := make(map[string]CandidateFile)
	for name, entry := range d.entries {
		if !entry.IsDuplicate() {
			out[name] = *entry.Candidate
		}
	}
	return out
}

// Duplicates returns the duplicate groups keyed by file name, each an
// ordered list of the conflicting paths.
func (d *Discovery) Duplicates() map[string][]string {
	out := make(map[string][]string)
	for name, entry := range d.entries {
		if entry.IsDuplicate() {
			out[name] = entry.DuplicatePaths
		}
	}
	return out
}

// Remove drops a candidate, e.g. when its run is not QC complete.
func (d *Discovery) Remove(fileName string) {
	entry, ok := d.entries[fileName]
	if ok && !entry.IsDuplicate() {
		delete(d.entries, fileName)
	}
}

// SortedCandidates returns the candidates ordered by file name, the
// canonical processing order for the run.
func (d *Discovery) SortedCandidates() []CandidateFile {
	candidates := d.Candidates()
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]CandidateFile, 0, len(names))
	for _, name := range names {
		out = append(out, candidates[name])
	}
	return out
}
