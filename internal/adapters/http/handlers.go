package http

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/report"
)

// ClassifyRequest asks whether a point lies inside a polygon, given either
// as a vertex list or as WKT.
type ClassifyRequest struct {
	Point   *geometry.Point  `json:"point"`
	Polygon []geometry.Point `json:"polygon,omitempty"`
	WKT     string           `json:"wkt,omitempty"`
	Rule    string           `json:"rule,omitempty"`
}

// ClassifyResponse is the answer to a ClassifyRequest.
type ClassifyResponse struct {
	Inside bool   `json:"inside"`
	Rule   string `json:"rule"`
}

// CountRequest counts a detection file inside a WKT region. A zero area is
// replaced by the region's own area.
type CountRequest struct {
	WKT        string               `json:"wkt"`
	Area       float64              `json:"area,omitempty"`
	Rule       string               `json:"rule,omitempty"`
	Detections domain.DetectionFile `json:"detections"`
}

// AnalysisBody is the payload of POST /v1/analyses. Unset options fall back
// to the server's configured defaults.
type AnalysisBody struct {
	ProjectID         int64    `json:"project_id"`
	JobID             int64    `json:"job_id,omitempty"`
	SoftwareID        int64    `json:"software_id,omitempty"`
	TermIDs           []int64  `json:"term_ids,omitempty"`
	ImageIDs          []int64  `json:"image_ids,omitempty"`
	AnnotationID      int64    `json:"annotation_id,omitempty"`
	OntologyID        *int64   `json:"ontology_id,omitempty"`
	Rule              string   `json:"rule,omitempty"`
	OutputFormats     []string `json:"output_formats,omitempty"`
	UploadProperties  *bool    `json:"upload_properties,omitempty"`
	UploadAnnotations *bool    `json:"upload_annotations,omitempty"`
	CleanupResults    *bool    `json:"cleanup_results,omitempty"`
	CreateTerms       *bool    `json:"create_terms,omitempty"`
}

// Request builds the analysis request, filling unset options from defaults.
func (b AnalysisBody) Request(d config.AnalysisConfig) domain.AnalysisRequest {
	req := domain.AnalysisRequest{
		ProjectID:         b.ProjectID,
		JobID:             b.JobID,
		SoftwareID:        b.SoftwareID,
		TermIDs:           b.TermIDs,
		ImageIDs:          b.ImageIDs,
		AnnotationID:      b.AnnotationID,
		OntologyID:        d.OntologyID,
		Rule:              b.Rule,
		OutputFormats:     b.OutputFormats,
		UploadProperties:  d.UploadProperties,
		UploadAnnotations: d.UploadAnnotations,
		CleanupResults:    d.CleanupResults,
		CreateTerms:       d.CreateTerms,
	}
	if req.Rule == "" {
		req.Rule = d.ClassifierRule
	}
	if len(req.OutputFormats) == 0 {
		req.OutputFormats = d.OutputFormats
	}
	if b.OntologyID != nil {
		req.OntologyID = *b.OntologyID
	}
	if b.UploadProperties != nil {
		req.UploadProperties = *b.UploadProperties
	}
	if b.UploadAnnotations != nil {
		req.UploadAnnotations = *b.UploadAnnotations
	}
	if b.CleanupResults != nil {
		req.CleanupResults = *b.CleanupResults
	}
	if b.CreateTerms != nil {
		req.CreateTerms = *b.CreateTerms
	}
	return req
}

// ClassifyHandler tests a single point against a polygon.
func ClassifyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ClassifyRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.Point == nil {
			return errBadRequest(c, "point is required")
		}
		if len(body.Polygon) == 0 && body.WKT == "" {
			return errBadRequest(c, "polygon or wkt is required")
		}

		svc, err := deps.Classification.WithRule(body.Rule)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		var inside bool
		if body.WKT != "" {
			region, perr := geometry.ParseRegion(body.WKT)
			if perr != nil {
				return errFrom(c, perr)
			}
			inside, err = svc.ClassifyRegion(*body.Point, region)
		} else {
			inside, err = svc.Classify(*body.Point, body.Polygon)
		}
		if err != nil {
			return errFrom(c, err)
		}

		c.Set("Cache-Control", "no-store")
		return c.JSON(ClassifyResponse{Inside: inside, Rule: string(svc.Rule())})
	}
}

// CountHandler counts detections inside a region and returns the stats with
// the matched points.
func CountHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CountRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if body.WKT == "" {
			return errBadRequest(c, "wkt is required")
		}

		svc, err := deps.Classification.WithRule(body.Rule)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		region, err := geometry.ParseRegion(body.WKT)
		if err != nil {
			return errFrom(c, err)
		}

		area := body.Area
		if area <= 0 {
			area = region.Area()
		}
		stats, err := svc.Count(region, body.Detections, area)
		if err != nil {
			return errFrom(c, err)
		}

		c.Set("Cache-Control", "no-store")
		return c.JSON(stats)
	}
}

// ListAnnotationsHandler lists the annotations of a project on the platform.
func ListAnnotationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID := int64(c.QueryInt("project", 0))
		if projectID <= 0 {
			return errBadRequest(c, "project query parameter is required")
		}
		terms, err := domain.ParseIDList(c.Query("terms"))
		if err != nil {
			return errBadRequest(c, "terms: "+err.Error())
		}
		images, err := domain.ParseIDList(c.Query("images"))
		if err != nil {
			return errBadRequest(c, "images: "+err.Error())
		}

		anns, err := deps.Annotations.List(c.UserContext(), domain.AnnotationFilter{
			ProjectID:    projectID,
			SoftwareID:   int64(c.QueryInt("software", 0)),
			TermIDs:      terms,
			ImageIDs:     images,
			AnnotationID: int64(c.QueryInt("annotation", 0)),
		})
		if err != nil {
			return errFrom(c, err)
		}

		offset, limit := pageParams(c, 100, 500)
		total := len(anns)
		if offset >= total {
			anns = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			anns = anns[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		c.Set("Cache-Control", "private, max-age=60")
		return c.JSON(PaginatedResponse{Data: anns, Pagination: pg})
	}
}

// SubmitAnalysisHandler queues an analysis run.
func SubmitAnalysisHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AnalysisBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		req := body.Request(deps.Defaults)
		if err := usecases.ValidateRequest(req); err != nil {
			return errFrom(c, err)
		}

		log := LoggerFromCtx(c.UserContext())
		run, err := deps.Analyses.Submit(c.UserContext(), req)
		if err != nil {
			log.Warn("analysis submit failed", "project", req.ProjectID, "error", err)
			return errUnavailable(c, err.Error())
		}
		log.Info("analysis queued", "run", run.ID, "project", req.ProjectID)

		c.Location("/v1/analyses/" + run.ID)
		return c.Status(fiber.StatusAccepted).JSON(run)
	}
}

// ListAnalysesHandler lists stored runs, newest first.
func ListAnalysesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c, 20, 100)
		runs, err := deps.Analyses.List(c.UserContext(), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if runs == nil {
			runs = []domain.AnalysisRun{}
		}

		// The store does not count rows, so total only covers what is known.
		pg := Pagination{Offset: offset, Limit: limit, Total: offset + len(runs)}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(PaginatedResponse{Data: runs, Pagination: pg})
	}
}

// GetAnalysisHandler returns one run with its stats.
func GetAnalysisHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := deps.Analyses.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(run)
	}
}

// AnalysisCSVHandler renders the stats of a run as CSV.
func AnalysisCSVHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := deps.Analyses.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		if run.Status != domain.RunSucceeded {
			return newError(c, fiber.StatusConflict, "conflict", "run "+run.ID+" is "+string(run.Status))
		}

		var buf bytes.Buffer
		if err := report.WriteStatsCSV(&buf, run.Stats); err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "text/csv; charset=utf-8")
		c.Set("Content-Disposition", `attachment; filename="`+run.ID+`_`+report.FileStatsCSV+`"`)
		return c.Send(buf.Bytes())
	}
}
