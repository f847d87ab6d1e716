package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
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

	stationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Station",
		Fields: graphql.Fields{
			"id":                &graphql.Field{Type: graphql.String},
			"station_id":        &graphql.Field{Type: graphql.String},
			"name":              &graphql.Field{Type: graphql.String},
			"location":          &graphql.Field{Type: geoPointType},
			"observations":      &graphql.Field{Type: graphql.Int},
			"variants":          &graphql.Field{Type: graphql.Int},
			"dispersion_meters": &graphql.Field{Type: graphql.Float},
			"distance":          &graphql.Field{Type: graphql.Float},
			"resolved_at":       &graphql.Field{Type: graphql.DateTime},
		},
	})

	popularityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StationPopularity",
		Fields: graphql.Fields{
			"station_id":    &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"location":      &graphql.Field{Type: geoPointType},
			"rides_started": &graphql.Field{Type: graphql.Int},
			"rides_ended":   &graphql.Field{Type: graphql.Int},
		},
	})

	rideType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Ride",
		Fields: graphql.Fields{
			"ride_id":            &graphql.Field{Type: graphql.String},
			"rideable_type":      &graphql.Field{Type: graphql.String},
			"started_at":         &graphql.Field{Type: graphql.DateTime},
			"ended_at":           &graphql.Field{Type: graphql.DateTime},
			"start_station_id":   &graphql.Field{Type: graphql.String},
			"start_station_name": &graphql.Field{Type: graphql.String},
			"end_station_id":     &graphql.Field{Type: graphql.String},
			"end_station_name":   &graphql.Field{Type: graphql.String},
			"start_location":     &graphql.Field{Type: geoPointType},
			"end_location":       &graphql.Field{Type: geoPointType},
			"member_casual":      &graphql.Field{Type: graphql.String},
			"duration_seconds":   &graphql.Field{Type: graphql.Int},
		},
	})

	riderSummaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RiderSummary",
		Fields: graphql.Fields{
			"member_casual":        &graphql.Field{Type: graphql.String},
			"rides":                &graphql.Field{Type: graphql.Int},
			"mean_duration_secs":   &graphql.Field{Type: graphql.Float},
			"median_duration_secs": &graphql.Field{Type: graphql.Float},
		},
	})

	weekdayStatType := graphql.NewObject(graphql.ObjectConfig{
		Name: "WeekdayStat",
		Fields: graphql.Fields{
			"weekday":            &graphql.Field{Type: graphql.Int},
			"member_casual":      &graphql.Field{Type: graphql.String},
			"rides":              &graphql.Field{Type: graphql.Int},
			"mean_duration_secs": &graphql.Field{Type: graphql.Float},
		},
	})

	monthlyStatType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MonthlyStat",
		Fields: graphql.Fields{
			"month":              &graphql.Field{Type: graphql.DateTime},
			"member_casual":      &graphql.Field{Type: graphql.String},
			"rides":              &graphql.Field{Type: graphql.Int},
			"mean_duration_secs": &graphql.Field{Type: graphql.Float},
		},
	})

	hourlyStatType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HourlyStat",
		Fields: graphql.Fields{
			"hour":          &graphql.Field{Type: graphql.Int},
			"member_casual": &graphql.Field{Type: graphql.String},
			"rides":         &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"station": &graphql.Field{
				Type:        stationType,
				Description: "Get a canonical station by station id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Stations.GetByStationID(p.Context, id)
				},
			},
			"stations": &graphql.Field{
				Type:        graphql.NewList(stationType),
				Description: "List canonical stations (paginated)",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					stations, _, err := deps.Stations.List(p.Context, offset, limit)
					return stations, err
				},
			},
			"stationsNearby": &graphql.Field{
				Type:        graphql.NewList(stationType),
				Description: "Find stations near a location",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 500.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					radius := p.Args["radius"].(float64)
					limit := p.Args["limit"].(int)
					return deps.Stations.FindNearby(p.Context, lat, lon, radius, limit)
				},
			},
			"searchStations": &graphql.Field{
				Type:        graphql.NewList(stationType),
				Description: "Search stations by name (fuzzy matching)",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["query"].(string)
					limit := p.Args["limit"].(int)
					return deps.Stations.Search(p.Context, q, nil, limit)
				},
			},
			"popularStations": &graphql.Field{
				Type:        graphql.NewList(popularityType),
				Description: "Stations ranked by combined ride traffic",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					return deps.Stations.Popularity(p.Context, limit)
				},
			},
			"ride": &graphql.Field{
				Type:        rideType,
				Description: "Get a ride by ride id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Rides.GetByRideID(p.Context, id)
				},
			},
			"riderSummary": &graphql.Field{
				Type:        graphql.NewList(riderSummaryType),
				Description: "Ride volume and durations per rider type",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analytics.Summary(p.Context)
				},
			},
			"ridesByWeekday": &graphql.Field{
				Type:        graphql.NewList(weekdayStatType),
				Description: "Ride volume per day of week and rider type",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analytics.Weekday(p.Context)
				},
			},
			"ridesByMonth": &graphql.Field{
				Type:        graphql.NewList(monthlyStatType),
				Description: "Ride volume per calendar month and rider type",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analytics.Monthly(p.Context)
				},
			},
			"ridesByHour": &graphql.Field{
				Type:        graphql.NewList(hourlyStatType),
				Description: "Ride volume per hour of day and rider type",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Analytics.Hourly(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
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
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
