package enrich

import (
	"fmt"
	"strings"

	"github.com/voss/murmur/internal/apperr"
)

// ValidateResult checks the structural shape of an enrichment result before
// it is accepted into the store, and normalizes tags to the lowercase set
// the data model requires. Collaborator payloads are untrusted: missing
// required fields fail with ErrEnrichmentFailed rather than being written.
func ValidateResult(r *Result) error {
	if r == nil {
		return fmt.Errorf("%w: empty result", apperr.ErrEnrichmentFailed)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: result missing title", apperr.ErrEnrichmentFailed)
	}
	if strings.TrimSpace(r.Transcription) == "" {
		return fmt.Errorf("%w: result missing transcription", apperr.ErrEnrichmentFailed)
	}
	r.Tags = NormalizeTags(r.Tags)
	return nil
}

// NormalizeTags lowercases, trims, and dedupes tags, preserving first-seen
// order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
