package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reqtrace/rtmgen/internal/models"
)

// ErrChunkIntegrity reports that planned chunks do not cover exactly the
// requirements they were built from.
var ErrChunkIntegrity = errors.New("chunk integrity violation")

// Validate checks that every source requirement appears in at least one chunk
// and that no chunk carries a requirement absent from the source set. Overlap
// repeats are fine; losses and fabrications are not.
func Validate(source []*models.Requirement, chunks []*models.Chunk) error {
	want := make(map[string]bool, len(source))
	for _, r := range source {
		want[r.CanonicalKey()] = true
	}

	got := make(map[string]bool)
	for _, c := range chunks {
		for _, r := range c.Requirements {
			got[r.CanonicalKey()] = true
		}
	}

	var missing, extra []string
	for key := range want {
		if !got[key] {
			missing = append(missing, key)
		}
	}
	for key := range got {
		if !want[key] {
			extra = append(extra, key)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("%w: %d missing [%s], %d unexpected [%s]",
			ErrChunkIntegrity,
			len(missing), strings.Join(missing, ", "),
			len(extra), strings.Join(extra, ", "))
	}
	return nil
}
