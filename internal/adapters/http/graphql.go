package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	termStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TermStats",
		Fields: graphql.Fields{
			"label":   &graphql.Field{Type: graphql.String},
			"term_id": &graphql.Field{Type: graphql.Int},
			"count":   &graphql.Field{Type: graphql.Int},
			"density": &graphql.Field{Type: graphql.Float},
		},
	})

	imageInfoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ImageInfo",
		Fields: graphql.Fields{
			"total":           &graphql.Field{Type: graphql.Int},
			"annotation_area": &graphql.Field{Type: graphql.Float},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AnnotationStats",
		Fields: graphql.Fields{
			"annotation_id": &graphql.Field{Type: graphql.Int},
			"image_id":      &graphql.Field{Type: graphql.Int},
			"job_id":        &graphql.Field{Type: graphql.Int},
			"skipped":       &graphql.Field{Type: graphql.Int},
			"image":         &graphql.Field{Type: imageInfoType},
			"terms":         &graphql.Field{Type: graphql.NewList(termStatsType)},
		},
	})

	runType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AnalysisRun",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"job_id":         &graphql.Field{Type: graphql.Int},
			"project_id":     &graphql.Field{Type: graphql.Int},
			"status":         &graphql.Field{Type: graphql.String},
			"progress":       &graphql.Field{Type: graphql.Int},
			"status_comment": &graphql.Field{Type: graphql.String},
			"error":          &graphql.Field{Type: graphql.String},
			"created_at":     &graphql.Field{Type: graphql.DateTime},
			"updated_at":     &graphql.Field{Type: graphql.DateTime},
			"stats":          &graphql.Field{Type: graphql.NewList(statsType)},
		},
	})

	classificationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Classification",
		Fields: graphql.Fields{
			"inside": &graphql.Field{Type: graphql.Boolean},
			"rule":   &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"analysis": &graphql.Field{
				Type:        runType,
				Description: "Get an analysis run by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analyses.Get(p.Context, p.Args["id"].(string))
				},
			},
			"analyses": &graphql.Field{
				Type:        graphql.NewList(runType),
				Description: "List analysis runs, newest first",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analyses.List(p.Context, p.Args["limit"].(int), p.Args["offset"].(int))
				},
			},
			"classify": &graphql.Field{
				Type:        classificationType,
				Description: "Test whether a point lies inside a WKT region",
				Args: graphql.FieldConfigArgument{
					"x":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"y":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"wkt":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"rule": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					svc, err := deps.Classification.WithRule(p.Args["rule"].(string))
					if err != nil {
						return nil, err
					}
					region, err := geometry.ParseRegion(p.Args["wkt"].(string))
					if err != nil {
						return nil, err
					}
					pt := geometry.Point{X: p.Args["x"].(float64), Y: p.Args["y"].(float64)}
					inside, err := svc.ClassifyRegion(pt, region)
					if err != nil {
						return nil, err
					}
					return ClassifyResponse{Inside: inside, Rule: string(svc.Rule())}, nil
				},
			},
			"rules": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Available containment rules",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out []string
					for _, r := range geometry.Rules() {
						out = append(out, string(r))
					}
					return out, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"submitAnalysis": &graphql.Field{
				Type:        runType,
				Description: "Queue an analysis run with the server defaults",
				Args: graphql.FieldConfigArgument{
					"project_id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"job_id":        &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"annotation_id": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"rule":          &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := AnalysisBody{
						ProjectID:    int64(p.Args["project_id"].(int)),
						JobID:        int64(p.Args["job_id"].(int)),
						AnnotationID: int64(p.Args["annotation_id"].(int)),
						Rule:         p.Args["rule"].(string),
					}
					return deps.Analyses.Submit(p.Context, body.Request(deps.Defaults))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
