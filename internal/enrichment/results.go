package enrichment

import (
	"path/filepath"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/pkg/fsutil"
)

// ResultStore persists one result or error document per identifier.
// Writes replace the previous document; nothing is merged.
type ResultStore struct {
	dir string
}

func NewResultStore(dir string) *ResultStore {
	return &ResultStore{dir: dir}
}

const errorSuffix = "_error"

// ResultPath is where the result for identifier lives
func (s *ResultStore) ResultPath(identifier string) string {
	return filepath.Join(s.dir, fileBase(identifier)+".json")
}

// ErrorPath is where the terminal failure for identifier lives
func (s *ResultStore) ErrorPath(identifier string) string {
	return filepath.Join(s.dir, fileBase(identifier)+errorSuffix+".json")
}

// fileBase keeps identifiers ending in _error off the error file of their stem
func fileBase(identifier string) string {
	name := fsutil.SafeName(identifier)
	if strings.HasSuffix(name, errorSuffix) {
		return fsutil.HashedName(identifier)
	}
	return name
}

func (s *ResultStore) SaveResult(result domain.EnrichmentResult) error {
	return fsutil.WriteJSONAtomic(s.ResultPath(result.Identifier), result)
}

func (s *ResultStore) SaveError(identifier string, cause error) error {
	return fsutil.WriteJSONAtomic(s.ErrorPath(identifier), domain.EnrichmentError{
		Error:      cause.Error(),
		At:         time.Now().UTC(),
		Identifier: identifier,
	})
}
