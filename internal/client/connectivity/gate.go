package connectivity

// Feature names an app capability whose availability depends on connectivity.
type Feature string

const (
	FeatureLogEntry  Feature = "log_entry"
	FeatureReadLocal Feature = "read_local"
	FeatureSettings  Feature = "settings"
	FeatureInsights  Feature = "insights"
	FeatureReports   Feature = "reports"
	FeatureExport    Feature = "export"
	FeatureShare     Feature = "share"
)

type Class string

const (
	AlwaysAvailable Class = "ALWAYS_AVAILABLE"
	DegradedOffline Class = "DEGRADED_OFFLINE"
	RequiresOnline  Class = "REQUIRES_ONLINE"
)

var classes = map[Feature]Class{
	FeatureLogEntry:  AlwaysAvailable,
	FeatureReadLocal: AlwaysAvailable,
	FeatureSettings:  AlwaysAvailable,
	FeatureInsights:  DegradedOffline,
	FeatureReports:   DegradedOffline,
	FeatureExport:    RequiresOnline,
	FeatureShare:     RequiresOnline,
}

// Features lists every known feature in display order.
func Features() []Feature {
	return []Feature{
		FeatureLogEntry, FeatureReadLocal, FeatureSettings,
		FeatureInsights, FeatureReports,
		FeatureExport, FeatureShare,
	}
}

// ClassOf returns the class of f. Unknown features require connectivity.
func ClassOf(f Feature) Class {
	if c, ok := classes[f]; ok {
		return c
	}
	return RequiresOnline
}

// Availability is the verdict for one feature. Stale means the feature works
// but shows cached data.
type Availability struct {
	Feature Feature
	Class   Class
	Allowed bool
	Stale   bool
}

// Evaluate computes the availability of f in state s.
func Evaluate(f Feature, s State) Availability {
	a := Availability{Feature: f, Class: ClassOf(f)}
	online := s == StateOnline
	switch a.Class {
	case AlwaysAvailable:
		a.Allowed = true
	case DegradedOffline:
		a.Allowed = true
		a.Stale = !online
	case RequiresOnline:
		a.Allowed = online
	}
	return a
}

// Gate answers availability questions from the monitor's current state, so
// every transition is reflected by the next query.
type Gate struct {
	state func() State
}

func NewGate(m *Monitor) *Gate {
	return &Gate{state: m.Current}
}

func (g *Gate) Availability(f Feature) Availability {
	return Evaluate(f, g.state())
}

// Snapshot evaluates every known feature against one state reading.
func (g *Gate) Snapshot() map[Feature]Availability {
	s := g.state()
	out := make(map[Feature]Availability, len(classes))
	for _, f := range Features() {
		out[f] = Evaluate(f, s)
	}
	return out
}
