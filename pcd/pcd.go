// Package pcd parses PCL point-cloud data (PCD) files into typed point,
// colour and intensity arrays.
//
// The format is a line-oriented ASCII header followed by an ASCII or
// binary payload:
//
//	VERSION 0.7
//	FIELDS x y z intensity
//	SIZE 4 4 4 4
//	TYPE F F F F
//	COUNT 1 1 1 1
//	WIDTH 4
//	HEIGHT 1
//	VIEWPOINT 0 0 0 1 0 0 0
//	POINTS 4
//	DATA ascii
//
// Binary payloads are little-endian fixed-size records matching the
// declared field sizes and types. The x, y and z fields are mandatory.
// Colour is reconstructed either from separate r/g/b (and optional a)
// byte fields, or from a single packed 32-bit rgb/rgba field whose bit
// pattern is unpacked by shifting. DATA binary_compressed is not
// supported and fails with ErrUnsupportedCompression.
package pcd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFormat reports a malformed PCD header or payload.
	ErrFormat = errors.New("malformed PCD data")

	// ErrUnsupportedCompression reports a binary_compressed payload, which
	// this parser deliberately does not implement.
	ErrUnsupportedCompression = errors.New("binary_compressed PCD data is not supported")
)

// PointCloud holds a parsed point cloud. Instances are immutable by
// convention: Transform returns a new cloud and callers must not modify
// the arrays in place.
type PointCloud struct {
	// Points are the x/y/z coordinates, one triple per point.
	Points [][3]float64

	// Colors are normalised RGBA values in [0,1], one per point. A is 1
	// when the source file carried no alpha channel. Nil when the file
	// has no colour information at all.
	Colors [][4]float64

	// Intensities holds the per-point intensity field, or nil when the
	// file declares none.
	Intensities []float64

	// Fields holds every remaining per-point scalar keyed by its
	// lower-cased field name.
	Fields map[string][]float64
}

// NumPoints returns the number of points in the cloud.
func (pc *PointCloud) NumPoints() int { return len(pc.Points) }

// Bounds returns the per-axis minimum and maximum coordinates. Both are
// zero vectors for an empty cloud.
func (pc *PointCloud) Bounds() (min, max [3]float64) {
	if len(pc.Points) == 0 {
		return min, max
	}
	min, max = pc.Points[0], pc.Points[0]
	for _, p := range pc.Points[1:] {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < min[axis] {
				min[axis] = p[axis]
			}
			if p[axis] > max[axis] {
				max[axis] = p[axis]
			}
		}
	}
	return min, max
}

// Transform applies a 4x4 homogeneous transform to every point and
// returns the resulting cloud. Colour, intensity and extra fields are
// shared with the receiver, which stays untouched.
func (pc *PointCloud) Transform(t *mat.Dense) *PointCloud {
	moved := make([][3]float64, len(pc.Points))
	for i, p := range pc.Points {
		moved[i] = [3]float64{
			t.At(0, 0)*p[0] + t.At(0, 1)*p[1] + t.At(0, 2)*p[2] + t.At(0, 3),
			t.At(1, 0)*p[0] + t.At(1, 1)*p[1] + t.At(1, 2)*p[2] + t.At(1, 3),
			t.At(2, 0)*p[0] + t.At(2, 1)*p[1] + t.At(2, 2)*p[2] + t.At(2, 3),
		}
	}
	return &PointCloud{
		Points:      moved,
		Colors:      pc.Colors,
		Intensities: pc.Intensities,
		Fields:      pc.Fields,
	}
}

// fieldSpec describes one column of the PCD payload.
type fieldSpec struct {
	name  string // lower-cased
	size  int    // bytes per element: 1, 2, 4 or 8
	typ   byte   // 'F', 'I' or 'U'
	count int    // elements per point, usually 1
}

type header struct {
	fields []fieldSpec
	points int
	data   string // "ascii", "binary" or "binary_compressed"
}

// recordSize is the number of payload bytes per point in binary layout.
func (h *header) recordSize() int {
	total := 0
	for _, f := range h.fields {
		total += f.size * f.count
	}
	return total
}

// FromBytes parses a complete PCD byte stream.
func FromBytes(data []byte) (*PointCloud, error) {
	h, payload, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	var columns [][]float64
	switch h.data {
	case "ascii":
		columns, err = parseASCII(h, payload)
	case "binary":
		columns, err = parseBinary(h, payload)
	case "binary_compressed":
		return nil, fmt.Errorf("%w", ErrUnsupportedCompression)
	default:
		return nil, fmt.Errorf("%w: unknown DATA kind %q", ErrFormat, h.data)
	}
	if err != nil {
		return nil, err
	}

	return assemble(h, columns)
}

// parseHeader consumes header lines until the DATA line and returns the
// parsed header plus the remaining payload bytes.
func parseHeader(data []byte) (*header, []byte, error) {
	h := &header{points: -1}
	var fieldNames []string
	var sizes, counts []int
	var types []byte

	rest := data
	for len(rest) > 0 {
		var line []byte
		if idx := bytes.IndexByte(rest, '\n'); idx >= 0 {
			line, rest = rest[:idx], rest[idx+1:]
		} else {
			line, rest = rest, nil
		}

		text := strings.TrimSpace(string(line))
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		tokens := strings.Fields(text)
		key, values := strings.ToUpper(tokens[0]), tokens[1:]
		switch key {
		case "VERSION", "VIEWPOINT", "WIDTH", "HEIGHT":
			// Not needed to decode the payload; POINTS is authoritative.
		case "FIELDS":
			fieldNames = values
		case "SIZE":
			ints, err := parseIntList(values)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: SIZE line: %v", ErrFormat, err)
			}
			sizes = ints
		case "TYPE":
			for _, v := range values {
				if len(v) != 1 {
					return nil, nil, fmt.Errorf("%w: TYPE entry %q", ErrFormat, v)
				}
				types = append(types, v[0])
			}
		case "COUNT":
			ints, err := parseIntList(values)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: COUNT line: %v", ErrFormat, err)
			}
			counts = ints
		case "POINTS":
			if len(values) != 1 {
				return nil, nil, fmt.Errorf("%w: POINTS line needs exactly one value", ErrFormat)
			}
			n, err := strconv.Atoi(values[0])
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("%w: POINTS %q", ErrFormat, values[0])
			}
			h.points = n
		case "DATA":
			if len(values) != 1 {
				return nil, nil, fmt.Errorf("%w: DATA line needs exactly one value", ErrFormat)
			}
			h.data = strings.ToLower(values[0])
			if err := h.finalize(fieldNames, sizes, types, counts); err != nil {
				return nil, nil, err
			}
			return h, rest, nil
		default:
			return nil, nil, fmt.Errorf("%w: unknown header line %q", ErrFormat, key)
		}
	}

	return nil, nil, fmt.Errorf("%w: missing DATA line", ErrFormat)
}

// finalize cross-checks the collected header lines and builds the field
// specs. Counts default to 1 when the COUNT line is absent.
func (h *header) finalize(names []string, sizes []int, types []byte, counts []int) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: missing FIELDS line", ErrFormat)
	}
	if len(sizes) != len(names) || len(types) != len(names) {
		return fmt.Errorf("%w: FIELDS/SIZE/TYPE declare %d/%d/%d entries",
			ErrFormat, len(names), len(sizes), len(types))
	}
	if counts == nil {
		counts = make([]int, len(names))
		for i := range counts {
			counts[i] = 1
		}
	}
	if len(counts) != len(names) {
		return fmt.Errorf("%w: COUNT declares %d entries for %d fields", ErrFormat, len(counts), len(names))
	}
	if h.points < 0 {
		return fmt.Errorf("%w: missing POINTS line", ErrFormat)
	}

	h.fields = make([]fieldSpec, len(names))
	for i, name := range names {
		switch sizes[i] {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("%w: field %q has unsupported SIZE %d", ErrFormat, name, sizes[i])
		}
		switch types[i] {
		case 'F', 'I', 'U':
		default:
			return fmt.Errorf("%w: field %q has unsupported TYPE %q", ErrFormat, name, string(types[i]))
		}
		if counts[i] < 1 {
			return fmt.Errorf("%w: field %q has COUNT %d", ErrFormat, name, counts[i])
		}
		h.fields[i] = fieldSpec{
			name:  strings.ToLower(name),
			size:  sizes[i],
			typ:   types[i],
			count: counts[i],
		}
	}
	return nil
}

func parseIntList(values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", v)
		}
		out[i] = n
	}
	return out, nil
}

// columnCount is the total number of scalar columns per point, counting
// multi-element fields once per element.
func columnCount(h *header) int {
	total := 0
	for _, f := range h.fields {
		total += f.count
	}
	return total
}

// parseASCII decodes a whitespace-separated payload: one line per point,
// one token per scalar column.
func parseASCII(h *header, payload []byte) ([][]float64, error) {
	cols := columnCount(h)
	columns := make([][]float64, cols)
	for i := range columns {
		columns[i] = make([]float64, 0, h.points)
	}

	parsed := 0
	for _, line := range strings.Split(string(payload), "\n") {
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if parsed == h.points {
			return nil, fmt.Errorf("%w: more payload rows than the declared %d points", ErrFormat, h.points)
		}

		tokens := strings.Fields(text)
		if len(tokens) != cols {
			return nil, fmt.Errorf("%w: point %d has %d values, want %d", ErrFormat, parsed, len(tokens), cols)
		}

		col := 0
		for _, f := range h.fields {
			for e := 0; e < f.count; e++ {
				v, err := parseASCIIScalar(tokens[col], f)
				if err != nil {
					return nil, fmt.Errorf("%w: point %d field %q: %v", ErrFormat, parsed, f.name, err)
				}
				columns[col] = append(columns[col], v)
				col++
			}
		}
		parsed++
	}

	if parsed != h.points {
		return nil, fmt.Errorf("%w: payload has %d points, header declares %d", ErrFormat, parsed, h.points)
	}
	return columns, nil
}

// parseASCIIScalar converts one token. Packed colour fields keep their
// float bit pattern so assemble can unpack channels by shifting.
func parseASCIIScalar(token string, f fieldSpec) (float64, error) {
	switch f.typ {
	case 'F':
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return 0, err
		}
		if isPackedColorField(f.name) {
			return float64(math.Float32bits(float32(v))), nil
		}
		return v, nil
	case 'I':
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	case 'U':
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
	return 0, fmt.Errorf("unsupported type %q", string(f.typ))
}

// parseBinary decodes fixed-size little-endian records.
func parseBinary(h *header, payload []byte) ([][]float64, error) {
	record := h.recordSize()
	need := record * h.points
	if len(payload) < need {
		return nil, fmt.Errorf("%w: binary payload has %d bytes, need %d for %d points",
			ErrFormat, len(payload), need, h.points)
	}

	cols := columnCount(h)
	columns := make([][]float64, cols)
	for i := range columns {
		columns[i] = make([]float64, h.points)
	}

	for p := 0; p < h.points; p++ {
		offset := p * record
		col := 0
		for _, f := range h.fields {
			for e := 0; e < f.count; e++ {
				raw := payload[offset : offset+f.size]
				v, err := decodeBinaryScalar(raw, f)
				if err != nil {
					return nil, fmt.Errorf("%w: point %d field %q: %v", ErrFormat, p, f.name, err)
				}
				columns[col][p] = v
				offset += f.size
				col++
			}
		}
	}
	return columns, nil
}

// decodeBinaryScalar converts one little-endian element. Packed colour
// fields keep their 32-bit pattern for later channel extraction.
func decodeBinaryScalar(raw []byte, f fieldSpec) (float64, error) {
	switch f.typ {
	case 'F':
		switch f.size {
		case 4:
			bits := binary.LittleEndian.Uint32(raw)
			if isPackedColorField(f.name) {
				return float64(bits), nil
			}
			return float64(math.Float32frombits(bits)), nil
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
		}
	case 'U':
		switch f.size {
		case 1:
			return float64(raw[0]), nil
		case 2:
			return float64(binary.LittleEndian.Uint16(raw)), nil
		case 4:
			return float64(binary.LittleEndian.Uint32(raw)), nil
		case 8:
			return float64(binary.LittleEndian.Uint64(raw)), nil
		}
	case 'I':
		switch f.size {
		case 1:
			return float64(int8(raw[0])), nil
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(raw))), nil
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(raw))), nil
		case 8:
			return float64(int64(binary.LittleEndian.Uint64(raw))), nil
		}
	}
	return 0, fmt.Errorf("unsupported TYPE %q SIZE %d", string(f.typ), f.size)
}

// isPackedColorField reports whether a field carries a packed 32-bit
// colour value rather than an ordinary scalar.
func isPackedColorField(name string) bool {
	return name == "rgb" || name == "rgba"
}

// assemble maps decoded columns onto the typed PointCloud arrays.
func assemble(h *header, columns [][]float64) (*PointCloud, error) {
	// Column index per single-element field name; multi-element fields are
	// exposed as name_0, name_1, ...
	index := map[string]int{}
	col := 0
	for _, f := range h.fields {
		if f.count == 1 {
			index[f.name] = col
			col++
			continue
		}
		for e := 0; e < f.count; e++ {
			index[fmt.Sprintf("%s_%d", f.name, e)] = col
			col++
		}
	}

	xi, okX := index["x"]
	yi, okY := index["y"]
	zi, okZ := index["z"]
	if !okX || !okY || !okZ {
		return nil, fmt.Errorf("%w: x, y and z fields are mandatory (have %v)", ErrFormat, fieldNames(h))
	}

	pc := &PointCloud{Points: make([][3]float64, h.points)}
	for p := 0; p < h.points; p++ {
		pc.Points[p] = [3]float64{columns[xi][p], columns[yi][p], columns[zi][p]}
	}
	consumed := map[string]bool{"x": true, "y": true, "z": true}

	if ii, ok := index["intensity"]; ok {
		pc.Intensities = columns[ii]
		consumed["intensity"] = true
	}

	assembleColors(pc, index, columns, consumed)

	for name, idx := range index {
		if consumed[name] {
			continue
		}
		if pc.Fields == nil {
			pc.Fields = map[string][]float64{}
		}
		pc.Fields[name] = columns[idx]
	}
	return pc, nil
}

// assembleColors fills pc.Colors from either separate r/g/b[/a] byte
// fields (scaled 0-255 to 0-1) or a packed rgb/rgba field.
func assembleColors(pc *PointCloud, index map[string]int, columns [][]float64, consumed map[string]bool) {
	if ri, ok := index["r"]; ok {
		gi, okG := index["g"]
		bi, okB := index["b"]
		if okG && okB {
			ai, hasAlpha := index["a"]
			pc.Colors = make([][4]float64, len(pc.Points))
			for p := range pc.Colors {
				c := [4]float64{columns[ri][p] / 255, columns[gi][p] / 255, columns[bi][p] / 255, 1}
				if hasAlpha {
					c[3] = columns[ai][p] / 255
				}
				pc.Colors[p] = c
			}
			consumed["r"], consumed["g"], consumed["b"] = true, true, true
			if hasAlpha {
				consumed["a"] = true
			}
			return
		}
	}

	for _, name := range []string{"rgba", "rgb"} {
		ci, ok := index[name]
		if !ok {
			continue
		}
		hasAlpha := name == "rgba"
		pc.Colors = make([][4]float64, len(pc.Points))
		for p := range pc.Colors {
			packed := uint32(columns[ci][p])
			c := [4]float64{
				float64(packed >> 16 & 0xFF) / 255,
				float64(packed >> 8 & 0xFF) / 255,
				float64(packed & 0xFF) / 255,
				1,
			}
			if hasAlpha {
				c[3] = float64(packed>>24&0xFF) / 255
			}
			pc.Colors[p] = c
		}
		consumed[name] = true
		return
	}
}

func fieldNames(h *header) []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.name
	}
	return names
}
