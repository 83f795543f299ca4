package label

import (
	"fmt"

	"github.com/gridline-ai/gridline-go/ontology"
)

// spaceMembership tracks which spaces an instance is placed on, in
// first-placement order.
type spaceMembership struct {
	spaces map[string]Space
	order  []string
}

func (m *spaceMembership) attach(s Space) {
	if m.spaces == nil {
		m.spaces = make(map[string]Space)
	}
	if _, ok := m.spaces[s.ID()]; ok {
		return
	}
	m.spaces[s.ID()] = s
	m.order = append(m.order, s.ID())
}

// detach removes a space and returns how many remain.
func (m *spaceMembership) detach(id string) int {
	if _, ok := m.spaces[id]; ok {
		delete(m.spaces, id)
		for i, sid := range m.order {
			if sid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return len(m.spaces)
}

func (m *spaceMembership) on(id string) bool {
	_, ok := m.spaces[id]
	return ok
}

func (m *spaceMembership) list() []Space {
	out := make([]Space, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.spaces[id])
	}
	return out
}

// ObjectInstance is one concrete object annotation: a stable hash, the
// ontology object it instantiates, its static and dynamic attribute
// answers, and membership of the spaces it is placed on. Placement data
// itself lives with each space. An instance is shared across spaces and
// is destroyed only when removed from its last space or from the row.
type ObjectInstance struct {
	objectHash string
	object     *ontology.Object
	meta       AnnotationMeta

	answers *answerStore

	// dynamic answers per space, keyed by attribute feature hash, with
	// attribute emission order per space.
	dynamic   map[string]map[string]*dynamicAttrAnswers
	attrOrder map[string][]string

	membership spaceMembership
	row        *LabelRow
}

// NewObjectInstance creates an unplaced instance of the given ontology
// object with a fresh hash.
func NewObjectInstance(obj *ontology.Object) *ObjectInstance {
	return newObjectInstance(obj, newShortHash())
}

func newObjectInstance(obj *ontology.Object, hash string) *ObjectInstance {
	return &ObjectInstance{
		objectHash: hash,
		object:     obj,
		meta:       NewAnnotationMeta(),
		answers:    newAnswerStore(),
		dynamic:    make(map[string]map[string]*dynamicAttrAnswers),
		attrOrder:  make(map[string][]string),
	}
}

// ObjectHash returns the instance's stable identity within its row.
func (o *ObjectInstance) ObjectHash() string { return o.objectHash }

// Object returns the ontology object this instance annotates.
func (o *ObjectInstance) Object() *ontology.Object { return o.object }

// FeatureHash returns the ontology object's feature hash.
func (o *ObjectInstance) FeatureHash() string { return o.object.FeatureNodeHash }

// Meta returns the instance-level provenance.
func (o *ObjectInstance) Meta() AnnotationMeta { return o.meta }

// SetMeta replaces the instance-level provenance.
func (o *ObjectInstance) SetMeta(m AnnotationMeta) { o.meta = m.withDefaults() }

// Spaces returns the spaces the instance is placed on, in
// first-placement order.
func (o *ObjectInstance) Spaces() []Space { return o.membership.list() }

// OnSpace reports whether the instance is placed on the given space.
func (o *ObjectInstance) OnSpace(spaceID string) bool { return o.membership.on(spaceID) }

// staticAttribute resolves an attribute hash for a static answer.
func (o *ObjectInstance) staticAttribute(attrHash string) (*ontology.Attribute, error) {
	attr := findAttribute(o.object.Attributes, attrHash)
	if attr == nil {
		return nil, fmt.Errorf("%w: attribute %q is not part of object %q",
			ErrNotFound, attrHash, o.object.Name)
	}
	if attr.Dynamic {
		return nil, fmt.Errorf("%w: attribute %q is dynamic; answer it per frame range through its space",
			ErrValidation, attr.Name)
	}
	return attr, nil
}

// SetTextAnswer answers a static text attribute.
func (o *ObjectInstance) SetTextAnswer(attrHash, text string) error {
	attr, err := o.staticAttribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, text, nil)
	if err != nil {
		return err
	}
	o.answers.set(a)
	o.meta = o.meta.touch("")
	return nil
}

// SetRadioAnswer answers a static radio attribute with one option.
func (o *ObjectInstance) SetRadioAnswer(attrHash, optionHash string) error {
	attr, err := o.staticAttribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, "", []string{optionHash})
	if err != nil {
		return err
	}
	o.answers.set(a)
	o.meta = o.meta.touch("")
	return nil
}

// SetChecklistAnswer answers a static checklist attribute with the given
// options.
func (o *ObjectInstance) SetChecklistAnswer(attrHash string, optionHashes ...string) error {
	attr, err := o.staticAttribute(attrHash)
	if err != nil {
		return err
	}
	a, err := buildAnswer(attr, "", optionHashes)
	if err != nil {
		return err
	}
	o.answers.set(a)
	o.meta = o.meta.touch("")
	return nil
}

// Answer returns the static answer for an attribute, if set.
func (o *ObjectInstance) Answer(attrHash string) (Answer, bool) {
	a, ok := o.answers.get(attrHash)
	if !ok {
		return Answer{}, false
	}
	return *a, true
}

// Answers returns every static answer in the order they were first set.
func (o *ObjectInstance) Answers() []Answer {
	stored := o.answers.list()
	out := make([]Answer, 0, len(stored))
	for _, a := range stored {
		out = append(out, *a)
	}
	return out
}

// dynamicAttribute resolves an attribute hash for dynamic answering.
func (o *ObjectInstance) dynamicAttribute(attrHash string) (*ontology.Attribute, error) {
	attr := findAttribute(o.object.Attributes, attrHash)
	if attr == nil {
		return nil, fmt.Errorf("%w: attribute %q is not part of object %q",
			ErrNotFound, attrHash, o.object.Name)
	}
	if !attr.Dynamic {
		return nil, fmt.Errorf("%w: attribute %q is static; use the instance answer setters",
			ErrValidation, attr.Name)
	}
	return attr, nil
}

// dynamicFor returns (creating on demand) the dynamic answer set for one
// attribute on one space.
func (o *ObjectInstance) dynamicFor(spaceID string, attr *ontology.Attribute) *dynamicAttrAnswers {
	perSpace, ok := o.dynamic[spaceID]
	if !ok {
		perSpace = make(map[string]*dynamicAttrAnswers)
		o.dynamic[spaceID] = perSpace
	}
	d, ok := perSpace[attr.FeatureNodeHash]
	if !ok {
		d = &dynamicAttrAnswers{attr: attr}
		perSpace[attr.FeatureNodeHash] = d
		o.attrOrder[spaceID] = append(o.attrOrder[spaceID], attr.FeatureNodeHash)
	}
	return d
}

// dynamicOn returns the dynamic answer sets for one space in attribute
// first-use order.
func (o *ObjectInstance) dynamicOn(spaceID string) []*dynamicAttrAnswers {
	perSpace := o.dynamic[spaceID]
	if perSpace == nil {
		return nil
	}
	out := make([]*dynamicAttrAnswers, 0, len(o.attrOrder[spaceID]))
	for _, hash := range o.attrOrder[spaceID] {
		if d, ok := perSpace[hash]; ok && len(d.values) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// dynamicLookup returns the dynamic answer set for one attribute on one
// space without creating it.
func (o *ObjectInstance) dynamicLookup(spaceID, attrHash string) *dynamicAttrAnswers {
	perSpace := o.dynamic[spaceID]
	if perSpace == nil {
		return nil
	}
	return perSpace[attrHash]
}

// clearDynamic drops all dynamic answers held for a space.
func (o *ObjectInstance) clearDynamic(spaceID string) {
	delete(o.dynamic, spaceID)
	delete(o.attrOrder, spaceID)
}

// moveDynamic re-keys dynamic answers when a placement moves between
// spaces. The caller guarantees the instance was not on the target.
func (o *ObjectInstance) moveDynamic(fromID, toID string) {
	if perSpace, ok := o.dynamic[fromID]; ok {
		o.dynamic[toID] = perSpace
		delete(o.dynamic, fromID)
	}
	if order, ok := o.attrOrder[fromID]; ok {
		o.attrOrder[toID] = order
		delete(o.attrOrder, fromID)
	}
}

// bindRow ties the instance to a row; instances never move between rows.
func (o *ObjectInstance) bindRow(r *LabelRow) error {
	if o.row != nil && o.row != r {
		return fmt.Errorf("%w: object instance %q already belongs to another label row",
			ErrValidation, o.objectHash)
	}
	o.row = r
	return nil
}

func (o *ObjectInstance) unbindRow() { o.row = nil }
