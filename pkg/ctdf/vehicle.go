package ctdf

type VehicleStatus string

const (
	VehicleStatusIdle        VehicleStatus = "idle"
	VehicleStatusActive      VehicleStatus = "active"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleStatusIdle, VehicleStatusActive, VehicleStatusMaintenance:
		return true
	}
	return false
}

type NextStopProjection struct {
	StopRef  string `json:"id" groups:"basic"`
	StopName string `json:"name" groups:"basic"`

	// Whole seconds, never negative
	ETA int `json:"eta" groups:"basic"`
}

type SegmentProgress struct {
	StopIndex int     `json:"currentStopIndex" groups:"basic"`
	Progress  float64 `json:"progressToNextStop" groups:"basic"`
}

// Vehicle is the live state of one bus. SegmentProgress is only set while
// the vehicle is active on an assigned route.
type Vehicle struct {
	PrimaryIdentifier string `json:"id" bson:"id" yaml:"id" validate:"required" groups:"basic"`
	PrimaryName       string `json:"name" bson:"name" yaml:"name" groups:"basic"`
	Registration      string `json:"registration" bson:"registration" yaml:"registration" groups:"detailed"`

	RouteRef string `json:"routeId,omitempty" bson:"route" yaml:"route" groups:"basic"`

	Status   VehicleStatus `json:"status" bson:"status" yaml:"status" groups:"basic"`
	Location Location      `json:"location" bson:"location" yaml:"location" groups:"basic"`
	Bearing  float64       `json:"heading" bson:"heading" yaml:"heading" groups:"basic"`

	NextStop        *NextStopProjection `json:"nextStop,omitempty" bson:"-" yaml:"-" groups:"basic"`
	SegmentProgress *SegmentProgress    `json:"segmentProgress,omitempty" bson:"-" yaml:"-" groups:"basic"`
}

func (v *Vehicle) IsActive() bool {
	return v.Status == VehicleStatusActive
}
