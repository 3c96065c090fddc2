package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

// DetectionSet maps a detection label (cell class, etc.) to its points in
// image pixel space.
type DetectionSet map[string][]geometry.Point

// Total returns the number of points across all labels.
func (d DetectionSet) Total() int {
	n := 0
	for _, pts := range d {
		n += len(pts)
	}
	return n
}

// DetectionFile is a DetectionSet that remembers the order in which labels
// appeared in the source JSON object. Term ids from job parameters are
// matched to labels by that position.
type DetectionFile struct {
	Labels []string
	Sets   DetectionSet
}

// NewDetectionFile returns an empty file.
func NewDetectionFile() DetectionFile {
	return DetectionFile{Sets: DetectionSet{}}
}

// Add appends points under label, registering the label on first use.
func (f *DetectionFile) Add(label string, pts ...geometry.Point) {
	if f.Sets == nil {
		f.Sets = DetectionSet{}
	}
	if _, ok := f.Sets[label]; !ok {
		f.Labels = append(f.Labels, label)
		f.Sets[label] = make([]geometry.Point, 0, len(pts))
	}
	f.Sets[label] = append(f.Sets[label], pts...)
}

// Points returns the points recorded under label.
func (f DetectionFile) Points(label string) []geometry.Point {
	return f.Sets[label]
}

// Total returns the number of points in the file.
func (f DetectionFile) Total() int {
	return f.Sets.Total()
}

// MarshalJSON writes labels in their original order.
func (f DetectionFile) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range f.Labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		pts := f.Sets[label]
		if pts == nil {
			pts = []geometry.Point{}
		}
		v, err := json.Marshal(pts)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a {label: [{x, y}, ...]} object, keeping key order.
// A repeated label is merged into its first occurrence.
func (f *DetectionFile) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("detection file: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("detection file: expected object, got %v", tok)
	}

	out := NewDetectionFile()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("detection file: %w", err)
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("detection file: expected label, got %v", tok)
		}
		var pts []geometry.Point
		if err := dec.Decode(&pts); err != nil {
			return fmt.Errorf("detection file: label %q: %w", label, err)
		}
		out.Add(label, pts...)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("detection file: %w", err)
	}

	*f = out
	return nil
}
