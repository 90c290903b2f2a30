package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ManifestColumns is the fixed header of the UKB manifest document.
var ManifestColumns = []string{"ukb_sample_id", "plate_id", "library_id", "path", "md5"}

// Manifest is the tab-separated report of one pipeline run. Rows are held
// sorted by file name so repeated builds over the same set are identical.
type Manifest struct {
	Files []EnrichedFile
}

// NewManifest builds a manifest over the surviving files, sorted by file
// name. An empty set is valid and renders as the header row alone.
func NewManifest(files []EnrichedFile) Manifest {
	sorted := make([]EnrichedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FileName < sorted[j].FileName
	})
	return Manifest{Files: sorted}
}

// Render serializes the manifest. The header row is always present.
func (m Manifest) Render() string {
	var b strings.Builder
	b.WriteString(strings.Join(ManifestColumns, "\t"))
	b.WriteByte('\n')
	for _, f := range m.Files {
		fields := []string{
			f.SampleID,
			f.PlateBarcode,
			strconv.FormatInt(f.LibraryID, 10),
			f.Path,
			f.MD5,
		}
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

// DocumentName derives the manifest file name from the run timestamp and
// an optional suffix.
func (m Manifest) DocumentName(at time.Time, suffix string) string {
	name := fmt.Sprintf("ukb_report_%s", at.UTC().Format("20060102150405"))
	if suffix != "" {
		name += "_" + suffix
	}
	return name + ".tsv"
}
