package stream

// Route is the path an event takes through the session.
type Route int

const (
	RouteIgnore Route = iota
	RouteGeo
	RouteDedup
)

func (r Route) String() string {
	switch r {
	case RouteGeo:
		return "geo"
	case RouteDedup:
		return "dedup"
	default:
		return "ignore"
	}
}

// Reasons an event is ignored.
const (
	ReasonNoText  = "no_text"
	ReasonRetweet = "retweet"
)

// Classification is the result of Classify.
type Classification struct {
	Route  Route
	Reason string
}

// Classify decides the route of an event before anything about it is
// changed. Events without text and reshares are ignored in both modes.
func Classify(ev RawEvent, geoMode bool) Classification {
	if !ev.HasText() {
		return Classification{Route: RouteIgnore, Reason: ReasonNoText}
	}
	if ev.IsRetweet() {
		return Classification{Route: RouteIgnore, Reason: ReasonRetweet}
	}
	if geoMode {
		return Classification{Route: RouteGeo}
	}
	return Classification{Route: RouteDedup}
}
