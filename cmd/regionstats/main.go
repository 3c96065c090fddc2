// Command regionstats runs a region stats analysis from the command line, or
// lists the annotations an analysis would count in.
//
//	regionstats run --cytomine_id_project 7 --cytomine_id_job 12 --terms_to_analyze 3,4
//	regionstats list --cytomine_id_project 7 --images_to_analyze 10
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/cytomine"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/logging"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/report"
)

const usage = `usage: regionstats <run|list> [flags]

  run    count detections inside the selected annotations and upload the results
  list   print the selected annotations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := newFlagSet(cmd)
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadWithFlags("regionstats-cli", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.SetupStderr(cfg.Log.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		err = runAnalysis(ctx, cfg, fs)
	case "list":
		err = listAnnotations(ctx, cfg, fs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func newFlagSet(cmd string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)

	fs.String("cytomine_host", "", "platform host")
	fs.String("cytomine_public_key", "", "platform public key")
	fs.String("cytomine_private_key", "", "platform private key")
	fs.Int64("cytomine_id_project", 0, "project to analyse")
	fs.Int64Slice("terms_to_analyze", nil, "term ids of the annotations to analyse")
	fs.Int64Slice("images_to_analyze", nil, "image ids of the annotations to analyse")
	fs.Int64("cytomine_id_annotation", 0, "analyse this annotation only")
	fs.Int64("cytomine_id_software", 0, "only annotations created by this software")
	fs.String("log_level", "info", "log level")

	if cmd == "list" {
		fs.Bool("wide", false, "print the whole WKT location")
	}
	if cmd != "run" {
		return fs
	}
	fs.Int64("cytomine_id_job", 0, "job that receives progress and output files")
	fs.String("classifier_rule", "", "point-in-polygon rule (winding_angle, angle_sum, ray_casting, planar)")
	fs.StringSlice("output_formats", nil, "stats file formats (json, csv)")
	fs.Bool("upload_properties", true, "write stats as annotation properties")
	fs.Bool("upload_annotations", true, "create multipoint annotations of the inside detections")
	fs.Bool("cleanup_results", true, "drop cached detection files when done")
	fs.Bool("create_terms", false, "create terms for unknown detection labels")
	fs.Int64("cytomine_id_ontology", 0, "ontology new terms are created in")
	fs.String("output_dir", "", "also write the output files to this directory")
	return fs
}

func newClient(cfg *config.Config) (*cytomine.Client, error) {
	return cytomine.NewClient(cfg.Cytomine.Host, cfg.Cytomine.PublicKey, cfg.Cytomine.PrivateKey, cfg.Cytomine.RequestTimeout())
}

func runAnalysis(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet) error {
	platform, err := newClient(cfg)
	if err != nil {
		return err
	}
	jobRepo := cytomine.NewJobRepo(platform)

	classification, err := usecases.NewClassificationService(cfg.Analysis.ClassifierRule)
	if err != nil {
		return err
	}
	svc := usecases.NewAnalysisService(
		usecases.NewAnnotationService(cytomine.NewAnnotationRepo(platform)),
		usecases.NewResultService(jobRepo, nil, cfg.Analysis.CacheTTL),
		usecases.NewTermService(cytomine.NewTermRepo(platform)),
		usecases.NewPropertyService(cytomine.NewPropertyRepo(platform)),
		classification,
		jobRepo,
		nil,
		nil,
	)

	req := domain.AnalysisRequest{
		ProjectID:         int64Flag(fs, "cytomine_id_project"),
		JobID:             int64Flag(fs, "cytomine_id_job"),
		SoftwareID:        int64Flag(fs, "cytomine_id_software"),
		TermIDs:           int64sFlag(fs, "terms_to_analyze"),
		ImageIDs:          int64sFlag(fs, "images_to_analyze"),
		AnnotationID:      int64Flag(fs, "cytomine_id_annotation"),
		OntologyID:        cfg.Analysis.OntologyID,
		Rule:              cfg.Analysis.ClassifierRule,
		OutputFormats:     cfg.Analysis.OutputFormats,
		UploadProperties:  cfg.Analysis.UploadProperties,
		UploadAnnotations: cfg.Analysis.UploadAnnotations,
		CleanupResults:    cfg.Analysis.CleanupResults,
		CreateTerms:       cfg.Analysis.CreateTerms,
	}

	rep, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	for _, s := range rep.Skipped {
		slog.Warn("annotation skipped", "annotation", s.AnnotationID, "reason", s.Reason)
	}
	slog.Info("analysis finished", "counted", len(rep.Stats), "skipped", len(rep.Skipped))

	if dir, _ := fs.GetString("output_dir"); dir != "" {
		if err := writeFiles(dir, rep.Stats, req.OutputFormats); err != nil {
			return err
		}
	}
	return report.WriteStatsCSV(os.Stdout, rep.Stats)
}

func writeFiles(dir string, stats []domain.AnnotationStats, formats []string) error {
	files, err := report.Build(stats, formats)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Filename)
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	slog.Info("output files written", "dir", dir, "files", len(files))
	return nil
}

func listAnnotations(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet) error {
	platform, err := newClient(cfg)
	if err != nil {
		return err
	}
	svc := usecases.NewAnnotationService(cytomine.NewAnnotationRepo(platform))

	anns, err := svc.List(ctx, domain.AnnotationFilter{
		ProjectID:    int64Flag(fs, "cytomine_id_project"),
		SoftwareID:   int64Flag(fs, "cytomine_id_software"),
		TermIDs:      int64sFlag(fs, "terms_to_analyze"),
		ImageIDs:     int64sFlag(fs, "images_to_analyze"),
		AnnotationID: int64Flag(fs, "cytomine_id_annotation"),
	})
	if err != nil {
		return err
	}

	wide, _ := fs.GetBool("wide")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIMAGE\tPROJECT\tTERM\tUSER\tAREA\tPERIMETER\tWKT")
	for _, a := range anns {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%v\t%d\t%s\t%s\t%s\n",
			a.ID, a.ImageID, a.ProjectID, a.TermIDs, a.UserID,
			strconv.FormatFloat(a.Area, 'f', 2, 64),
			strconv.FormatFloat(a.Perimeter, 'f', 2, 64),
			location(a.Location, wide),
		)
	}
	return tw.Flush()
}

func int64Flag(fs *pflag.FlagSet, name string) int64 {
	v, err := fs.GetInt64(name)
	if err != nil {
		return 0
	}
	return v
}

func int64sFlag(fs *pflag.FlagSet, name string) []int64 {
	v, err := fs.GetInt64Slice(name)
	if err != nil {
		return nil
	}
	return v
}

// location shortens a WKT to its first 60 bytes unless wide is set.
func location(wkt string, wide bool) string {
	const n = 60
	if wide || len(wkt) <= n {
		return wkt
	}
	return wkt[:n-3] + "..."
}
