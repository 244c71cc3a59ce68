package models

// EstimationType enumerates the supported estimation scales.
type EstimationType string

const (
	EstimationFibonacci EstimationType = "FIBONACCI"
	EstimationTShirt    EstimationType = "TSHIRT"
)

// Sentinel vote values valid on every scale.
const (
	VoteUnknown = "?"
	VotePass    = "☕"
)

var (
	fibonacciValues = []string{"0", "1", "2", "3", "5", "8", "13", "21"}
	tshirtValues    = []string{"XS", "S", "M", "L", "XL", "XXL"}
)

// Valid reports whether the estimation type is one of the supported scales.
func (t EstimationType) Valid() bool {
	return t == EstimationFibonacci || t == EstimationTShirt
}

// Values returns the card values for the scale, excluding sentinels.
func (t EstimationType) Values() []string {
	switch t {
	case EstimationTShirt:
		return tshirtValues
	default:
		return fibonacciValues
	}
}

// IsSentinel reports whether a vote value is one of the "unknown"/"pass"
// sentinels that never count toward consensus.
func IsSentinel(value string) bool {
	return value == VoteUnknown || value == VotePass
}

// Session is a single planning-poker room. Exactly one of its participants
// carries the host flag for the lifetime of the session.
type Session struct {
	BaseModel
	EstimationType EstimationType `gorm:"type:text;not null" json:"estimationType"`

	Participants []Participant `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Features     []Feature     `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"features,omitempty"`
}

// SessionSnapshot is the full session state sent to a joining client and
// returned by the REST session endpoint.
type SessionSnapshot struct {
	Session        *Session `json:"session"`
	CurrentFeature *Feature `json:"currentFeature,omitempty"`
}
