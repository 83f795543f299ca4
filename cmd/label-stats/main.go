// label-stats summarises a label dict JSON file: per-space instance and
// classification counts plus labeled coverage.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gridline-ai/gridline-go/label"
	"github.com/gridline-ai/gridline-go/ontology"
)

// frameLabels is the query surface shared by the frame-indexed space
// types (video, image, scene).
type frameLabels interface {
	NumberOfFrames() int64
	ObjectFrames(objectHash string) ([]int64, error)
}

// rangeLabels is the query surface shared by the range-indexed space
// types (audio, text).
type rangeLabels interface {
	Size() int64
	ObjectRanges(objectHash string) ([]label.Range, label.AnnotationMeta, error)
}

func main() {
	var file string
	var ontologyFile string

	flag.StringVar(&file, "file", "", "path to a label dict JSON file")
	flag.StringVar(&ontologyFile, "ontology", "", "path to the ontology structure JSON file")
	flag.Parse()

	if file == "" || ontologyFile == "" {
		log.Fatalf("both -file and -ontology must be provided")
	}

	ontologyData, err := os.ReadFile(ontologyFile)
	if err != nil {
		log.Fatalf("read ontology: %v", err)
	}
	structure, err := ontology.ParseStructure(ontologyData)
	if err != nil {
		log.Fatalf("parse ontology: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("read label dict: %v", err)
	}
	row, err := label.DecodeRow(data, structure)
	if err != nil {
		log.Fatalf("decode label dict: %v", err)
	}

	globals := 0
	for _, inst := range row.ClassificationInstances(nil) {
		if inst.Global() {
			globals++
		}
	}
	fmt.Printf("row %s (%s) status %s\n", row.LabelHash(), row.DataTitle(), row.Status())
	fmt.Printf("objects: %d, classifications: %d (%d global)\n",
		len(row.ObjectInstances(nil)), len(row.ClassificationInstances(nil)), globals)

	for _, sp := range row.Spaces() {
		objects := sp.ObjectInstances(nil)
		classifications := sp.ClassificationInstances(nil)
		covered, total := coverage(sp, objects)
		fmt.Printf("space %s (%s): %d objects, %d classifications, coverage %d/%d\n",
			sp.ID(), sp.Type(), len(objects), len(classifications), covered, total)
	}
}

// coverage returns how many frames or units of the space carry at least
// one object label, and the space's total extent.
func coverage(sp label.Space, objects []*label.ObjectInstance) (covered, total int64) {
	var spans []label.Range
	switch s := sp.(type) {
	case frameLabels:
		total = s.NumberOfFrames()
		for _, inst := range objects {
			frames, err := s.ObjectFrames(inst.ObjectHash())
			if err != nil {
				continue
			}
			spans = append(spans, label.FramesToRanges(frames)...)
		}
	case rangeLabels:
		total = s.Size()
		for _, inst := range objects {
			ranges, _, err := s.ObjectRanges(inst.ObjectHash())
			if err != nil {
				continue
			}
			spans = append(spans, ranges...)
		}
	}
	for _, r := range label.MergeRanges(spans) {
		covered += r.End - r.Start + 1
	}
	return covered, total
}
