package http

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	pixelType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Pixel",
		Fields: graphql.Fields{
			"x": &graphql.Field{Type: graphql.Float},
			"y": &graphql.Field{Type: graphql.Float},
		},
	})

	projectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProjectionResult",
		Fields: graphql.Fields{
			"pixel":             &graphql.Field{Type: pixelType},
			"location":          &graphql.Field{Type: geoPointType},
			"northing_m":        &graphql.Field{Type: graphql.Float},
			"easting_m":         &graphql.Field{Type: graphql.Float},
			"ground_distance_m": &graphql.Field{Type: graphql.Float},
			"bearing_deg":       &graphql.Field{Type: graphql.Float},
			"out_of_bounds":     &graphql.Field{Type: graphql.Boolean},
			"error":             &graphql.Field{Type: graphql.String},
		},
	})

	targetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Target",
		Fields: graphql.Fields{
			"id":                &graphql.Field{Type: graphql.String},
			"image_id":          &graphql.Field{Type: graphql.String},
			"label":             &graphql.Field{Type: graphql.String},
			"confidence":        &graphql.Field{Type: graphql.Float},
			"pixel":             &graphql.Field{Type: pixelType},
			"location":          &graphql.Field{Type: geoPointType},
			"ground_distance_m": &graphql.Field{Type: graphql.Float},
			"bearing_deg":       &graphql.Field{Type: graphql.Float},
			"out_of_bounds":     &graphql.Field{Type: graphql.Boolean},
			"distance":          &graphql.Field{Type: graphql.Float},
		},
	})

	poseInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PoseInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"latitude":        &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"longitude":       &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"altitude":        &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"horizontal_fov":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"gimbal_yaw":      &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"gimbal_pitch":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"pitch_reference": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"image_width":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
			"image_height":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	pixelInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PixelInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"x": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"y": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"project": &graphql.Field{
				Type:        graphql.NewList(projectionType),
				Description: "Project pixels of a frame onto the ground",
				Args: graphql.FieldConfigArgument{
					"pose":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(poseInput)},
					"pixels": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(pixelInput)))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var pose domain.CameraPose
					if err := decodeArg(p.Args["pose"], &pose); err != nil {
						return nil, err
					}
					var pixels []domain.PixelLocation
					if err := decodeArg(p.Args["pixels"], &pixels); err != nil {
						return nil, err
					}
					if len(pixels) > maxPixelsPerRequest {
						return nil, fmt.Errorf("too many pixels (max %d)", maxPixelsPerRequest)
					}
					return deps.Geolocation.Project(p.Context, deps.withPitchReference(pose), pixels)
				},
			},
			"target": &graphql.Field{
				Type:        targetType,
				Description: "Get a target by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Targets.GetByID(p.Context, id)
				},
			},
			"targetsNearby": &graphql.Field{
				Type:        graphql.NewList(targetType),
				Description: "Find targets near a location",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 100.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					radius := p.Args["radius"].(float64)
					if radius <= 0 || radius > maxNearbyRadiusM {
						return nil, fmt.Errorf("radius must be between 1 and %d meters", maxNearbyRadiusM)
					}
					limit := p.Args["limit"].(int)
					return deps.Targets.FindNearby(p.Context, lat, lon, radius, limit)
				},
			},
			"imageTargets": &graphql.Field{
				Type:        graphql.NewList(targetType),
				Description: "Targets found in an image",
				Args: graphql.FieldConfigArgument{
					"image_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"offset":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					imageID := p.Args["image_id"].(string)
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					targets, _, err := deps.Targets.ListByImage(p.Context, imageID, offset, limit)
					return targets, err
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// decodeArg converts a coerced input object into a domain struct via its json tags.
func decodeArg(arg interface{}, dst interface{}) error {
	data, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
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
		if req.Query == "" {
			return errBadRequest(c, "query is required")
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
