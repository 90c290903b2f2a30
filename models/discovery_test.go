package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(name, path string) CandidateFile {
	return CandidateFile{FileName: name, Path: path, RunID: 48573, Lanes: []int{1}, TagIndex: 9, SampleID: "UKBS1"}
}

func TestDiscoveryUniqueCandidate(t *testing.T) {
	d := NewDiscovery()
	d.Add(candidate("48573_1#9.cram", "gs://b/2026-01-01/UKBS1/48573/48573_1#9.cram"))

	require.Len(t, d.Candidates(), 1)
	assert.Empty(t, d.Duplicates())
}

func TestDiscoveryRetroactiveDemotion(t *testing.T) {
	d := NewDiscovery()
	first := "gs://b/2026-01-01/UKBS1/48573/48573_1#9.cram"
	second := "gs://b/2026-01-02/UKBS1/48573/48573_1#9.cram"

	d.Add(candidate("48573_1#9.cram", first))
	d.Add(candidate("48573_1#9.cram", second))

	// The first occurrence is reclassified too: nothing remains processable.
	assert.Empty(t, d.Candidates())
	dups := d.Duplicates()
	require.Len(t, dups, 1)
	assert.Equal(t, []string{first, second}, dups["48573_1#9.cram"])
}

func TestDiscoveryTripleDuplicate(t *testing.T) {
	d := NewDiscovery()
	paths := []string{
		"gs://b/2026-01-01/UKBS1/48573/48573_1#9.cram",
		"gs://b/2026-01-02/UKBS1/48573/48573_1#9.cram",
		"gs://b/2026-01-03/UKBS1/48573/48573_1#9.cram",
	}
	for _, p := range paths {
		d.Add(candidate("48573_1#9.cram", p))
	}

	assert.Empty(t, d.Candidates())
	assert.Equal(t, paths, d.Duplicates()["48573_1#9.cram"])
}

func TestDiscoveryRemove(t *testing.T) {
	d := NewDiscovery()
	d.Add(candidate("48573_1#9.cram", "gs://b/x/UKBS1/48573/48573_1#9.cram"))
	d.Remove("48573_1#9.cram")
	assert.Empty(t, d.Candidates())

	// Remove must not touch duplicate groups.
	d.Add(candidate("48573_2#9.cram", "gs://b/x/UKBS1/48573/48573_2#9.cram"))
	d.Add(candidate("48573_2#9.cram", "gs://b/y/UKBS1/48573/48573_2#9.cram"))
	d.Remove("48573_2#9.cram")
	assert.Len(t, d.Duplicates(), 1)
}

func TestSortedCandidatesOrder(t *testing.T) {
	d := NewDiscovery()
	d.Add(candidate("48573_2#9.cram", "gs://b/x/UKBS1/48573/48573_2#9.cram"))
	d.Add(candidate("48573_1#9.cram", "gs://b/x/UKBS1/48573/48573_1#9.cram"))

	sorted := d.SortedCandidates()
	require.Len(t, sorted, 2)
	assert.Equal(t, "48573_1#9.cram", sorted[0].FileName)
	assert.Equal(t, "48573_2#9.cram", sorted[1].FileName)
}
