package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// productNamePattern matches product file names of the form
// <run>[_<lane>[-<lane>...]]#<tag>.cram, e.g. "48573_1-2#44.cram".
var productNamePattern = regexp.MustCompile(`^(\d+)(?:_(\d+(?:-\d+)*))?#(\d+)\.cram$`)

// ComponentKey is the natural key of a single-lane product: the unit a
// merged product is composed of.
type ComponentKey struct {
	RunID    int64
	Lane     int
	TagIndex int
}

// ParseProductFileName splits a product file name into run id, lane list
// and tag index. A name without a lane token yields an empty lane list.
func ParseProductFileName(name string) (runID int64, lanes []int, tagIndex int, err error) {
	m := productNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, nil, 0, fmt.Errorf("malformed product file name %q", name)
	}
	runID, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("malformed run id in %q: %w", name, err)
	}
	if m[2] != "" {
		for _, tok := range strings.Split(m[2], "-") {
			lane, err := strconv.Atoi(tok)
			if err != nil {
				return 0, nil, 0, fmt.Errorf("malformed lane in %q: %w", name, err)
			}
			lanes = append(lanes, lane)
		}
	}
	tagIndex, err = strconv.Atoi(m[3])
	if err != nil {
		return 0, nil, 0, fmt.Errorf("malformed tag index in %q: %w", name, err)
	}
	return runID, lanes, tagIndex, nil
}

// ComponentKeys expands a product file name into the single-lane component
// keys it declares, one per lane. A laneless name has no declared
// components to link.
func ComponentKeys(fileName string) ([]ComponentKey, error) {
	runID, lanes, tag, err := ParseProductFileName(fileName)
	if err != nil {
		return nil, err
	}
	if len(lanes) == 0 {
		return nil, fmt.Errorf("product %q declares no lanes", fileName)
	}
	keys := make([]ComponentKey, 0, len(lanes))
	for _, lane := range lanes {
		keys = append(keys, ComponentKey{RunID: runID, Lane: lane, TagIndex: tag})
	}
	return keys, nil
}

// ParentProduct is a merged product row awaiting composition links.
type ParentProduct struct {
	ID       int64  `db:"id_product"`
	FileName string `db:"file_name"`
}
