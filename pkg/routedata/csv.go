package routedata

import (
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/travigo/livebus/pkg/ctdf"
)

// routeStopRow is one line of a flat route stops CSV, similar in shape to
// GTFS stop_times joined with stops
type routeStopRow struct {
	RouteID      string  `csv:"route_id"`
	RouteName    string  `csv:"route_name"`
	StopSequence int     `csv:"stop_sequence"`
	StopID       string  `csv:"stop_id"`
	StopName     string  `csv:"stop_name"`
	StopLat      float64 `csv:"stop_lat"`
	StopLon      float64 `csv:"stop_lon"`
}

// LoadCSV reads routes from a route stops CSV. The file carries no fleet so
// the returned catalog has no vehicles.
func LoadCSV(reader io.Reader) (*Catalog, error) {
	var rows []*routeStopRow
	if err := gocsv.Unmarshal(reader, &rows); err != nil {
		return nil, fmt.Errorf("parsing route stops csv: %w", err)
	}

	routeRows := map[string][]*routeStopRow{}
	var routeOrder []string

	for _, row := range rows {
		if _, exists := routeRows[row.RouteID]; !exists {
			routeOrder = append(routeOrder, row.RouteID)
		}
		routeRows[row.RouteID] = append(routeRows[row.RouteID], row)
	}

	routes := make([]ctdf.Route, 0, len(routeOrder))
	for _, routeID := range routeOrder {
		stopRows := routeRows[routeID]
		sort.SliceStable(stopRows, func(i, j int) bool {
			return stopRows[i].StopSequence < stopRows[j].StopSequence
		})

		route := ctdf.Route{
			PrimaryIdentifier: routeID,
			PrimaryName:       stopRows[0].RouteName,
			From:              stopRows[0].StopName,
			To:                stopRows[len(stopRows)-1].StopName,
		}

		for _, row := range stopRows {
			route.Stops = append(route.Stops, ctdf.Stop{
				PrimaryIdentifier: row.StopID,
				PrimaryName:       row.StopName,
				Location: ctdf.Location{
					Latitude:  row.StopLat,
					Longitude: row.StopLon,
				},
			})
		}

		routes = append(routes, route)
	}

	return New(routes, nil)
}
