package fhirclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ehr/triage/internal/domain/vitals"
)

// ErrSubjectNotFound is returned when a FileSource has no file for a subject.
var ErrSubjectNotFound = errors.New("no observation file for subject")

// FileSource serves Observations from {dir}/{subject}.json. A file may hold
// a Bundle, a single Observation or a JSON array of Observations.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) FetchObservations(ctx context.Context, subjectID string) ([]vitals.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if subjectID == "" || strings.ContainsAny(subjectID, `/\`) || subjectID == "." || subjectID == ".." {
		return nil, fmt.Errorf("invalid subject id %q", subjectID)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, subjectID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
		}
		return nil, fmt.Errorf("read observations for %s: %w", subjectID, err)
	}
	return ParseObservations(data)
}

// Subjects lists the subject ids that have an observation file.
func (s *FileSource) Subjects() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ParseObservations decodes a Bundle, an Observation or an array of
// Observations. Numbers are kept as json.Number.
func ParseObservations(data []byte) ([]vitals.RawObservation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var list []map[string]interface{}
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode observation array: %w", err)
		}
		out := make([]vitals.RawObservation, 0, len(list))
		for _, r := range list {
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	}

	var res map[string]interface{}
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return ObservationsFromResource(res)
}
