package simulation

import (
	"math"

	"github.com/travigo/livebus/pkg/ctdf"
)

const progressEpsilon = 1e-9

// estimateETA is the whole seconds left to the end of the route for a
// vehicle progress of the way along the segment starting at stopIndex
func estimateETA(route *ctdf.Route, stopIndex int, progress float64, secondsPerSegment float64) int {
	segmentsRemaining := route.SegmentsRemaining(stopIndex)
	if segmentsRemaining <= 0 {
		return 0
	}

	seconds := (1-progress)*secondsPerSegment + float64(segmentsRemaining-1)*secondsPerSegment
	eta := int(math.Ceil(seconds - progressEpsilon))
	if eta < 0 {
		return 0
	}

	return eta
}

func projectNextStop(route *ctdf.Route, stopIndex int, progress float64, secondsPerSegment float64) *ctdf.NextStopProjection {
	if stopIndex+1 > route.LastStopIndex() {
		return nil
	}

	nextStop := route.Stops[stopIndex+1]

	return &ctdf.NextStopProjection{
		StopRef:  nextStop.PrimaryIdentifier,
		StopName: nextStop.PrimaryName,
		ETA:      estimateETA(route, stopIndex, progress, secondsPerSegment),
	}
}
