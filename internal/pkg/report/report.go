// Package report encodes analysis results into the files uploaded as job
// data: stats.json, stats.csv and one inside_points_<annotation>.json per
// annotation.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// Job data keys and filenames.
const (
	KeyStats      = "stats"
	KeyDetections = "detections"

	FileStatsJSON = "stats.json"
	FileStatsCSV  = "stats.csv"

	FormatJSON = "json"
	FormatCSV  = "csv"
)

// InsidePointsFilename names the inside-points file of an annotation.
func InsidePointsFilename(annotationID int64) string {
	return fmt.Sprintf("inside_points_%d.json", annotationID)
}

// StatsJSON encodes stats as an object keyed by annotation id. Inside points
// are not part of it.
func StatsJSON(stats []domain.AnnotationStats) ([]byte, error) {
	out := make(map[string]domain.AnnotationStats, len(stats))
	for _, s := range stats {
		s.Inside = nil
		out[strconv.FormatInt(s.AnnotationID, 10)] = s
	}
	return json.Marshal(out)
}

var csvHeader = []string{
	"annotation_id", "image_id", "job_id", "label", "term_id",
	"image_count", "image_total", "annotation_area", "count", "density", "skipped",
}

// WriteStatsCSV writes one row per annotation and label.
func WriteStatsCSV(w io.Writer, stats []domain.AnnotationStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range stats {
		for _, t := range s.Terms {
			row := []string{
				strconv.FormatInt(s.AnnotationID, 10),
				strconv.FormatInt(s.ImageID, 10),
				strconv.FormatInt(s.JobID, 10),
				t.Label,
				strconv.FormatInt(t.TermID, 10),
				strconv.Itoa(s.Image.Counts[t.Label]),
				strconv.Itoa(s.Image.Total),
				strconv.FormatFloat(s.Image.AnnotationArea, 'f', -1, 64),
				strconv.Itoa(t.Count),
				strconv.FormatFloat(t.Density, 'f', -1, 64),
				strconv.Itoa(s.Skipped),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// InsidePointsJSON encodes the points found inside an annotation, keeping
// label order.
func InsidePointsJSON(s domain.AnnotationStats) ([]byte, error) {
	if s.Inside == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Inside)
}

// File is one encoded output.
type File struct {
	Key      string
	Filename string
	Content  []byte
}

// BuildStats encodes the stats files for the requested formats. Unknown
// formats are rejected.
func BuildStats(stats []domain.AnnotationStats, formats []string) ([]File, error) {
	if len(formats) == 0 {
		formats = []string{FormatJSON}
	}

	var files []File
	for _, f := range formats {
		switch f {
		case FormatJSON:
			b, err := StatsJSON(stats)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", FileStatsJSON, err)
			}
			files = append(files, File{Key: KeyStats, Filename: FileStatsJSON, Content: b})
		case FormatCSV:
			var buf bytes.Buffer
			if err := WriteStatsCSV(&buf, stats); err != nil {
				return nil, fmt.Errorf("encode %s: %w", FileStatsCSV, err)
			}
			files = append(files, File{Key: KeyStats, Filename: FileStatsCSV, Content: buf.Bytes()})
		default:
			return nil, fmt.Errorf("unknown output format %q", f)
		}
	}
	return files, nil
}

// BuildInsidePoints encodes one inside-points file per annotation.
func BuildInsidePoints(stats []domain.AnnotationStats) ([]File, error) {
	files := make([]File, 0, len(stats))
	for _, s := range stats {
		b, err := InsidePointsJSON(s)
		if err != nil {
			return nil, fmt.Errorf("encode inside points of %d: %w", s.AnnotationID, err)
		}
		files = append(files, File{Key: KeyDetections, Filename: InsidePointsFilename(s.AnnotationID), Content: b})
	}
	return files, nil
}

// Build encodes every output file: stats first, then inside points.
func Build(stats []domain.AnnotationStats, formats []string) ([]File, error) {
	files, err := BuildStats(stats, formats)
	if err != nil {
		return nil, err
	}
	inside, err := BuildInsidePoints(stats)
	if err != nil {
		return nil, err
	}
	return append(files, inside...), nil
}
