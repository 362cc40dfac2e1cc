package ctdf

import "fmt"

type Stop struct {
	PrimaryIdentifier string `json:"id" bson:"id" yaml:"id" csv:"stop_id" validate:"required" groups:"basic"`
	PrimaryName       string `json:"name" bson:"name" yaml:"name" csv:"stop_name" validate:"required" groups:"basic"`

	Location Location `json:"location" bson:"location" yaml:"location" groups:"basic"`
}

// Route is a fixed ordered path of stops. Stop order is the direction of
// travel.
type Route struct {
	PrimaryIdentifier string `json:"id" bson:"id" yaml:"id" validate:"required" groups:"basic"`
	PrimaryName       string `json:"name" bson:"name" yaml:"name" groups:"basic"`

	From  string `json:"from" bson:"from" yaml:"from" groups:"detailed"`
	To    string `json:"to" bson:"to" yaml:"to" groups:"detailed"`
	Color string `json:"color" bson:"color" yaml:"color" groups:"detailed"`

	Stops []Stop `json:"stops" bson:"stops" yaml:"stops" validate:"min=2,dive" groups:"basic"`
}

func (r *Route) String() string {
	return fmt.Sprintf("%s (%d stops)", r.PrimaryIdentifier, len(r.Stops))
}

func (r *Route) LastStopIndex() int {
	return len(r.Stops) - 1
}

// SegmentsRemaining counts the segments still to travel when the vehicle is
// between stop index and the following stop
func (r *Route) SegmentsRemaining(stopIndex int) int {
	remaining := r.LastStopIndex() - stopIndex
	if remaining < 0 {
		return 0
	}
	return remaining
}
