package label

import (
	"fmt"

	"github.com/gridline-ai/gridline-go/ontology"
)

// ClassificationInstance is one concrete classification annotation: a
// stable hash, the ontology classification it instantiates, one answer
// per attribute of the classification, and membership of the spaces it
// is placed on. At most one instance of a feature may be active per
// space; a global instance is scoped to the whole row instead and takes
// no space placement.
type ClassificationInstance struct {
	classificationHash string
	classification     *ontology.Classification
	global             bool
	meta               AnnotationMeta

	answers *answerStore

	membership spaceMembership
	row        *LabelRow
}

// NewClassificationInstance creates an unplaced instance of the given
// ontology classification with a fresh hash.
func NewClassificationInstance(c *ontology.Classification) *ClassificationInstance {
	return newClassificationInstance(c, newShortHash(), false)
}

// NewGlobalClassificationInstance creates a row-scoped instance: it is
// registered on the row directly and never placed on a space.
func NewGlobalClassificationInstance(c *ontology.Classification) *ClassificationInstance {
	return newClassificationInstance(c, newShortHash(), true)
}

func newClassificationInstance(c *ontology.Classification, hash string, global bool) *ClassificationInstance {
	return &ClassificationInstance{
		classificationHash: hash,
		classification:     c,
		global:             global,
		meta:               NewAnnotationMeta(),
		answers:            newAnswerStore(),
	}
}

// ClassificationHash returns the instance's stable identity within its
// row.
func (c *ClassificationInstance) ClassificationHash() string { return c.classificationHash }

// Classification returns the ontology classification this instance
// annotates.
func (c *ClassificationInstance) Classification() *ontology.Classification {
	return c.classification
}

// FeatureHash returns the ontology classification's feature hash.
func (c *ClassificationInstance) FeatureHash() string { return c.classification.FeatureNodeHash }

// Global reports whether the instance is scoped to the whole row.
func (c *ClassificationInstance) Global() bool { return c.global }

// Meta returns the instance-level provenance.
func (c *ClassificationInstance) Meta() AnnotationMeta { return c.meta }

// SetMeta replaces the instance-level provenance.
func (c *ClassificationInstance) SetMeta(m AnnotationMeta) { c.meta = m.withDefaults() }

// Spaces returns the spaces the instance is placed on, in
// first-placement order.
func (c *ClassificationInstance) Spaces() []Space { return c.membership.list() }

// OnSpace reports whether the instance is placed on the given space.
func (c *ClassificationInstance) OnSpace(spaceID string) bool { return c.membership.on(spaceID) }

func (c *ClassificationInstance) attribute(attrHash string) (*ontology.Attribute, error) {
	attr := findAttribute(c.classification.Attributes, attrHash)
	if attr == nil {
		return nil, fmt.Errorf("%w: attribute %q is not part of classification %q",
			ErrNotFound, attrHash, c.classification.FeatureNodeHash)
	}
	return attr, nil
}

// SetTextAnswer answers a text attribute of the classification.
func (c *ClassificationInstance) SetTextAnswer(attrHash, text string) error {
	attr, err := c.attribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, text, nil)
	if err != nil {
		return err
	}
	c.answers.set(a)
	c.meta = c.meta.touch("")
	return nil
}

// SetRadioAnswer answers a radio attribute with one option.
func (c *ClassificationInstance) SetRadioAnswer(attrHash, optionHash string) error {
	attr, err := c.attribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, "", []string{optionHash})
	if err != nil {
		return err
	}
	c.answers.set(a)
	c.meta = c.meta.touch("")
	return nil
}

// SetChecklistAnswer answers a checklist attribute with the given
// options.
func (c *ClassificationInstance) SetChecklistAnswer(attrHash string, optionHashes ...string) error {
	attr, err := c.attribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, "", optionHashes)
	if err != nil {
		return err
	}
	c.answers.set(a)
	c.meta = c.meta.touch("")
	return nil
}

// Answer returns the answer for an attribute, if set.
func (c *ClassificationInstance) Answer(attrHash string) (Answer, bool) {
	a, ok := c.answers.get(attrHash)
	if !ok {
		return Answer{}, false
	}
	return *a, true
}

// Answers returns every answer in the order they were first set.
func (c *ClassificationInstance) Answers() []Answer {
	stored := c.answers.list()
	out := make([]Answer, 0, len(stored))
	for _, a := range stored {
		out = append(out, *a)
	}
	return out
}

func (c *ClassificationInstance) bindRow(r *LabelRow) error {
	if c.row != nil && c.row != r {
		return fmt.Errorf("%w: classification instance %q already belongs to another label row",
			ErrValidation, c.classificationHash)
	}
	c.row = r
	return nil
}

func (c *ClassificationInstance) unbindRow() { c.row = nil }
