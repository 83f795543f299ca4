package label

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gridline-ai/gridline-go/ontology"
)

// Answer is one resolved attribute answer. Exactly one of Text, Option,
// or Options is meaningful, selected by the attribute's type.
type Answer struct {
	Attribute *ontology.Attribute

	Text    string             // text attributes
	Option  *ontology.Option   // radio attributes
	Options []*ontology.Option // checklist attributes, in selection order
}

// equalPayload reports whether two answers to the same attribute carry
// the same value.
func (a Answer) equalPayload(b Answer) bool {
	switch a.Attribute.Type {
	case ontology.AttributeText:
		return a.Text == b.Text
	case ontology.AttributeRadio:
		return a.Option != nil && b.Option != nil && a.Option.FeatureNodeHash == b.Option.FeatureNodeHash
	case ontology.AttributeChecklist:
		if len(a.Options) != len(b.Options) {
			return false
		}
		seen := make(map[string]bool, len(a.Options))
		for _, o := range a.Options {
			seen[o.FeatureNodeHash] = true
		}
		for _, o := range b.Options {
			if !seen[o.FeatureNodeHash] {
				return false
			}
		}
		return true
	}
	return false
}

// answerStore keeps static answers keyed by attribute feature hash in
// insertion order.
type answerStore struct {
	byHash map[string]*Answer
	order  []string
}

func newAnswerStore() *answerStore {
	return &answerStore{byHash: make(map[string]*Answer)}
}

func (s *answerStore) set(a *Answer) {
	hash := a.Attribute.FeatureNodeHash
	if _, ok := s.byHash[hash]; !ok {
		s.order = append(s.order, hash)
	}
	s.byHash[hash] = a
}

func (s *answerStore) get(hash string) (*Answer, bool) {
	a, ok := s.byHash[hash]
	return a, ok
}

func (s *answerStore) list() []*Answer {
	out := make([]*Answer, 0, len(s.order))
	for _, hash := range s.order {
		out = append(out, s.byHash[hash])
	}
	return out
}

// findAttribute searches an attribute tree, option-nested attributes
// included, for the given feature hash.
func findAttribute(attrs []*ontology.Attribute, hash string) *ontology.Attribute {
	for _, a := range attrs {
		if a.FeatureNodeHash == hash {
			return a
		}
		for _, opt := range a.Options {
			if found := findAttribute(opt.Nested, hash); found != nil {
				return found
			}
		}
	}
	return nil
}

// findOption resolves an option hash within one attribute.
func findOption(a *ontology.Attribute, hash string) *ontology.Option {
	for _, opt := range a.Options {
		if opt.FeatureNodeHash == hash {
			return opt
		}
	}
	return nil
}

// buildAnswer validates an answer payload against the attribute type.
func buildAnswer(attr *ontology.Attribute, text string, optionHashes []string) (*Answer, error) {
	switch attr.Type {
	case ontology.AttributeText:
		if len(optionHashes) > 0 {
			return nil, fmt.Errorf("%w: attribute %q is text, options given", ErrValidation, attr.Name)
		}
		return &Answer{Attribute: attr, Text: text}, nil

	case ontology.AttributeRadio:
		if len(optionHashes) != 1 {
			return nil, fmt.Errorf("%w: attribute %q is radio, needs exactly one option, got %d",
				ErrValidation, attr.Name, len(optionHashes))
		}
		opt := findOption(attr, optionHashes[0])
		if opt == nil {
			return nil, fmt.Errorf("%w: option %q is not part of attribute %q",
				ErrNotFound, optionHashes[0], attr.Name)
		}
		return &Answer{Attribute: attr, Option: opt}, nil

	case ontology.AttributeChecklist:
		if len(optionHashes) == 0 {
			return nil, fmt.Errorf("%w: attribute %q is checklist, needs at least one option",
				ErrValidation, attr.Name)
		}
		opts := make([]*ontology.Option, 0, len(optionHashes))
		seen := make(map[string]bool, len(optionHashes))
		for _, h := range optionHashes {
			if seen[h] {
				continue
			}
			seen[h] = true
			opt := findOption(attr, h)
			if opt == nil {
				return nil, fmt.Errorf("%w: option %q is not part of attribute %q", ErrNotFound, h, attr.Name)
			}
			opts = append(opts, opt)
		}
		return &Answer{Attribute: attr, Options: opts}, nil

	default:
		return nil, fmt.Errorf("%w: attribute %q has unknown type %q", ErrValidation, attr.Name, attr.Type)
	}
}

// snakeValue derives the wire "value" slug from a display name.
func snakeValue(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// wireAnswer is one entry of an object's or classification's answer list.
type wireAnswer struct {
	Name        string          `json:"name"`
	Value       string          `json:"value"`
	Answers     json.RawMessage `json:"answers"`
	FeatureHash string          `json:"featureHash"`
}

// wireOptionAnswer is one selected option inside a radio or checklist
// answers array.
type wireOptionAnswer struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	FeatureHash string `json:"featureHash"`
}

func encodeAnswer(a *Answer) (wireAnswer, error) {
	entry := wireAnswer{
		Name:        a.Attribute.Name,
		Value:       snakeValue(a.Attribute.Name),
		FeatureHash: a.Attribute.FeatureNodeHash,
	}

	var payload any
	switch a.Attribute.Type {
	case ontology.AttributeText:
		payload = a.Text
	case ontology.AttributeRadio:
		payload = []wireOptionAnswer{optionAnswer(a.Option)}
	case ontology.AttributeChecklist:
		opts := make([]wireOptionAnswer, 0, len(a.Options))
		for _, o := range a.Options {
			opts = append(opts, optionAnswer(o))
		}
		payload = opts
	default:
		return wireAnswer{}, fmt.Errorf("%w: attribute %q has unknown type %q",
			ErrValidation, a.Attribute.Name, a.Attribute.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return wireAnswer{}, fmt.Errorf("encode answer for %q: %w", a.Attribute.Name, err)
	}
	entry.Answers = raw
	return entry, nil
}

func optionAnswer(o *ontology.Option) wireOptionAnswer {
	return wireOptionAnswer{Name: o.Label, Value: o.Value, FeatureHash: o.FeatureNodeHash}
}

// decodeAnswer resolves a wire answer entry against an attribute tree.
func decodeAnswer(attrs []*ontology.Attribute, entry wireAnswer) (*Answer, error) {
	attr := findAttribute(attrs, entry.FeatureHash)
	if attr == nil {
		return nil, fmt.Errorf("%w: answer references attribute %q not present in the ontology item",
			ErrConsistency, entry.FeatureHash)
	}

	switch attr.Type {
	case ontology.AttributeText:
		var text string
		if err := json.Unmarshal(entry.Answers, &text); err != nil {
			return nil, fmt.Errorf("%w: text answer for %q: %v", ErrFormat, attr.Name, err)
		}
		return &Answer{Attribute: attr, Text: text}, nil

	case ontology.AttributeRadio, ontology.AttributeChecklist:
		var opts []wireOptionAnswer
		if err := json.Unmarshal(entry.Answers, &opts); err != nil {
			return nil, fmt.Errorf("%w: option answers for %q: %v", ErrFormat, attr.Name, err)
		}
		hashes := make([]string, 0, len(opts))
		for _, o := range opts {
			hashes = append(hashes, o.FeatureHash)
		}
		return buildAnswer(attr, "", hashes)

	default:
		return nil, fmt.Errorf("%w: attribute %q has unknown type %q", ErrValidation, attr.Name, attr.Type)
	}
}

// DynamicAnswer is one dynamic attribute value and the ranges it covers
// on a space.
type DynamicAnswer struct {
	Answer Answer
	Ranges []Range
}

// dynamicValue pairs one answer payload with its coverage.
type dynamicValue struct {
	answer *Answer
	ranges []Range
}

// dynamicAttrAnswers holds every value ever set for one dynamic
// attribute on one space, values in first-set order.
type dynamicAttrAnswers struct {
	attr   *ontology.Attribute
	values []*dynamicValue
}

// setOnRanges makes the given payload the answer over ranges: the
// ranges are carved out of every other value first, so values never
// overlap.
func (d *dynamicAttrAnswers) setOnRanges(a *Answer, ranges []Range) {
	merged := MergeRanges(ranges)

	kept := d.values[:0]
	var target *dynamicValue
	for _, v := range d.values {
		if v.answer.equalPayload(*a) {
			target = v
			kept = append(kept, v)
			continue
		}
		v.ranges = SubtractRanges(v.ranges, merged)
		if len(v.ranges) > 0 {
			kept = append(kept, v)
		}
	}
	d.values = kept

	if target == nil {
		d.values = append(d.values, &dynamicValue{answer: a, ranges: merged})
		return
	}
	target.ranges = MergeRanges(append(append([]Range(nil), target.ranges...), merged...))
}

// removeFromRanges clears every value over the given ranges; values left
// with no coverage are dropped. Returns what was actually removed.
func (d *dynamicAttrAnswers) removeFromRanges(ranges []Range) []Range {
	merged := MergeRanges(ranges)
	var removed []Range

	kept := d.values[:0]
	for _, v := range d.values {
		removed = append(removed, IntersectRanges(v.ranges, merged)...)
		v.ranges = SubtractRanges(v.ranges, merged)
		if len(v.ranges) > 0 {
			kept = append(kept, v)
		}
	}
	d.values = kept
	return MergeRanges(removed)
}

// answersOn returns the values intersecting ranges; nil means all.
func (d *dynamicAttrAnswers) answersOn(ranges []Range) []DynamicAnswer {
	var out []DynamicAnswer
	for _, v := range d.values {
		covered := v.ranges
		if ranges != nil {
			covered = IntersectRanges(v.ranges, ranges)
			if len(covered) == 0 {
				continue
			}
		}
		out = append(out, DynamicAnswer{
			Answer: *v.answer,
			Ranges: append([]Range(nil), covered...),
		})
	}
	return out
}
