package label

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConfidence is the confidence assigned to annotations that were
// not given an explicit one.
const DefaultConfidence = 1.0

// timeNow is stubbed in tests for deterministic provenance.
var timeNow = func() time.Time { return time.Now().UTC() }

// newShortHash mints the 8-character identity used for object,
// classification, and label-row hashes.
func newShortHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AnnotationMeta is the provenance attached to every placement entry and
// instance: who created and last edited it, when, with what confidence,
// and whether a human drew it.
type AnnotationMeta struct {
	CreatedAt        time.Time
	CreatedBy        string
	LastEditedAt     time.Time
	LastEditedBy     string
	Confidence       float64
	ManualAnnotation bool
}

// NewAnnotationMeta returns provenance stamped with the current time,
// default confidence, and the manual-annotation flag set.
func NewAnnotationMeta() AnnotationMeta {
	now := timeNow()
	return AnnotationMeta{
		CreatedAt:        now,
		LastEditedAt:     now,
		Confidence:       DefaultConfidence,
		ManualAnnotation: true,
	}
}

// withDefaults fills the zero fields a caller-supplied meta left unset.
func (m AnnotationMeta) withDefaults() AnnotationMeta {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = timeNow()
	}
	if m.LastEditedAt.IsZero() {
		m.LastEditedAt = m.CreatedAt
	}
	if m.Confidence == 0 {
		m.Confidence = DefaultConfidence
	}
	return m
}

// touch updates the edit trail.
func (m AnnotationMeta) touch(editor string) AnnotationMeta {
	m.LastEditedAt = timeNow()
	if editor != "" {
		m.LastEditedBy = editor
	}
	return m
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
