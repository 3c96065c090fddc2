package domain

import (
	"fmt"
	"strconv"
)

// Property keys written onto annotations.
const (
	PropTotalImage     = "count_total_image"
	PropAnnotationArea = "annotation_area"
)

func PropImageCount(label string) string      { return fmt.Sprintf("count_%s_image", label) }
func PropAnnotationCount(label string) string { return fmt.Sprintf("count_%s_annotation", label) }
func PropDensity(label string) string         { return fmt.Sprintf("density_%s_annotation", label) }

// Properties flattens the stats into annotation properties. Image counts come
// first in label order, then the per-label inside counts and densities.
func (s AnnotationStats) Properties() []Property {
	props := make([]Property, 0, 2+3*len(s.Terms))
	for _, t := range s.Terms {
		props = append(props, Property{
			DomainIdent: s.AnnotationID,
			Key:         PropImageCount(t.Label),
			Value:       strconv.Itoa(s.Image.Counts[t.Label]),
		})
	}
	props = append(props,
		Property{DomainIdent: s.AnnotationID, Key: PropTotalImage, Value: strconv.Itoa(s.Image.Total)},
		Property{DomainIdent: s.AnnotationID, Key: PropAnnotationArea, Value: formatFloat(s.Image.AnnotationArea)},
	)
	for _, t := range s.Terms {
		props = append(props,
			Property{DomainIdent: s.AnnotationID, Key: PropAnnotationCount(t.Label), Value: strconv.Itoa(t.Count)},
			Property{DomainIdent: s.AnnotationID, Key: PropDensity(t.Label), Value: formatFloat(t.Density)},
		)
	}
	return props
}

// Density returns count/area, or 0 for an empty area.
func Density(count int, area float64) float64 {
	if area <= 0 {
		return 0
	}
	return float64(count) / area
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
