package decode

// Kind identifies a Sample variant.
type Kind int

const (
	KindOrientation Kind = iota + 1
	KindPlant
	KindDistance
)

func (k Kind) String() string {
	switch k {
	case KindOrientation:
		return "orientation"
	case KindPlant:
		return "plant"
	case KindDistance:
		return "distance"
	default:
		return "unknown"
	}
}

// Sample is one decoded telemetry reading. The concrete type is one of
// Orientation, Plant or Distance.
type Sample interface {
	Kind() Kind
}

// Orientation is an IMU attitude reading in degrees. The nominal range is
// [-90, 90] but it is not enforced.
type Orientation struct {
	Roll  float64
	Pitch float64
}

// Plant is one row of the process under control: time and two process variables.
type Plant struct {
	T float64
	U float64
	V float64
}

// Distance is a range reading in millimeters. ObservedAt is seconds since
// the decoder was created.
type Distance struct {
	Distance   float64
	ObservedAt float64
}

func (Orientation) Kind() Kind { return KindOrientation }
func (Plant) Kind() Kind       { return KindPlant }
func (Distance) Kind() Kind    { return KindDistance }
