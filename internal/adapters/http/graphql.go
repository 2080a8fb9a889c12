package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

func parkToMap(p domain.Park) map[string]interface{} {
	m := map[string]interface{}{
		"park_id": p.ID.String(),
		"name":    p.Name,
		"center":  coordToMap(p.Center),
	}
	if p.Distance != nil {
		m["distance"] = *p.Distance
	}
	return m
}

func parksToMaps(parks []domain.Park) []map[string]interface{} {
	out := make([]map[string]interface{}, len(parks))
	for i, p := range parks {
		out[i] = parkToMap(p)
	}
	return out
}

func coordToMap(c domain.Coordinate) map[string]interface{} {
	return map[string]interface{}{"lat": c.Lat(), "lng": c.Lng()}
}

func selectionToMap(s domain.SelectionState) map[string]interface{} {
	m := map[string]interface{}{
		"mode":       string(s.Mode),
		"generation": int(s.Generation),
	}
	if id, ok := s.Selected(); ok {
		m["park_id"] = id.String()
	}
	return m
}

func snapshotToMap(id string, snap domain.Snapshot, tags []string) map[string]interface{} {
	features := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		if snap.Features[c] != nil {
			features = append(features, string(c))
		}
	}
	m := map[string]interface{}{
		"id":            id,
		"version":       int(snap.Version),
		"ready":         snap.Ready,
		"filters_ready": snap.FiltersReady,
		"visible_count": snap.Visible.Len(),
		"selection":     selectionToMap(snap.Selection),
		"features":      features,
		"filter_tags":   tags,
	}
	if snap.Filter != nil {
		m["filter"] = *snap.Filter
	}
	if snap.SelectedPark != nil {
		m["selected_park"] = parkToMap(*snap.SelectedPark)
	}
	if snap.UserLocation != nil {
		m["user_location"] = coordToMap(*snap.UserLocation)
	}
	return m
}

// buildSchema creates the GraphQL schema. Every field takes the session
// id; queries read the session's engine and mutations drive it.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	parkType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Park",
		Fields: graphql.Fields{
			"park_id":  &graphql.Field{Type: graphql.ID},
			"name":     &graphql.Field{Type: graphql.String},
			"center":   &graphql.Field{Type: coordType},
			"distance": &graphql.Field{Type: graphql.Float, Description: "Miles from the user"},
		},
	})

	selectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Selection",
		Fields: graphql.Fields{
			"mode":       &graphql.Field{Type: graphql.String},
			"park_id":    &graphql.Field{Type: graphql.ID},
			"generation": &graphql.Field{Type: graphql.Int},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.ID},
			"version":       &graphql.Field{Type: graphql.Int},
			"ready":         &graphql.Field{Type: graphql.Boolean},
			"filters_ready": &graphql.Field{Type: graphql.Boolean},
			"filter":        &graphql.Field{Type: graphql.String},
			"filter_tags":   &graphql.Field{Type: graphql.NewList(graphql.String)},
			"visible_count": &graphql.Field{Type: graphql.Int},
			"selection":     &graphql.Field{Type: selectionType},
			"selected_park": &graphql.Field{Type: parkType},
			"features":      &graphql.Field{Type: graphql.NewList(graphql.String)},
			"user_location": &graphql.Field{Type: coordType},
		},
	})

	sessionArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}

	engineFor := func(p graphql.ResolveParams) (*usecases.Session, error) {
		id, _ := p.Args["session"].(string)
		return deps.Sessions.Get(id)
	}
	sessionResult := func(sess *usecases.Session) map[string]interface{} {
		return snapshotToMap(sess.ID, sess.Engine.Snapshot(), sess.Engine.FilterTags())
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Current state of a session",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					return sessionResult(sess), nil
				},
			},
			"visibleParks": &graphql.Field{
				Type:        graphql.NewList(parkType),
				Description: "Parks passing the active filter",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"offset":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					offset, _ := p.Args["offset"].(int)
					limit, _ := p.Args["limit"].(int)
					if offset < 0 {
						offset = 0
					}
					if limit <= 0 || limit > 500 {
						limit = 100
					}
					return parksToMaps(page(sess.Engine.VisibleParks(), offset, limit)), nil
				},
			},
			"nearbyParks": &graphql.Field{
				Type:        graphql.NewList(parkType),
				Description: "Parks closest to the user",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"radius":  &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 25.0},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					radius, _ := p.Args["radius"].(float64)
					limit, _ := p.Args["limit"].(int)
					parks, err := sess.Engine.NearbyParks(radius, limit)
					if err != nil {
						return nil, err
					}
					return parksToMaps(parks), nil
				},
			},
			"park": &graphql.Field{
				Type:        parkType,
				Description: "A park from the session's catalog",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"id":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					park, ok := sess.Engine.FindPark(p.Args["id"])
					if !ok {
						return nil, nil
					}
					return parkToMap(park), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"applyFilter": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"tag":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					sess.Engine.ApplyFilter(p.Args["tag"].(string))
					return sessionResult(sess), nil
				},
			},
			"clearFilter": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					sess.Engine.ClearFilter()
					return sessionResult(sess), nil
				},
			},
			"selectPark": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"park_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					if err := sess.Engine.SelectParkWithID(p.Args["park_id"]); err != nil {
						return nil, err
					}
					return sessionResult(sess), nil
				},
			},
			"returnToBrowsing": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := engineFor(p)
					if err != nil {
						return nil, err
					}
					sess.Engine.ReturnToBrowsing()
					return sessionResult(sess), nil
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
		if result.HasErrors() {
			LoggerFromCtx(c.UserContext()).Debug("graphql errors", "errors", result.Errors)
		}

		return c.JSON(result)
	}
}
