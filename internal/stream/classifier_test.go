package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		event   RawEvent
		geoMode bool
		route   Route
		reason  string
	}{
		{"no text keyword mode", RawEvent{"id": 1}, false, RouteIgnore, ReasonNoText},
		{"no text geo mode", RawEvent{"coordinates": map[string]any{}}, true, RouteIgnore, ReasonNoText},
		{"retweet keyword mode", RawEvent{"text": "x", "retweeted_status": map[string]any{}}, false, RouteIgnore, ReasonRetweet},
		{"retweet geo mode", RawEvent{"text": "x", "retweeted_status": nil, "coordinates": map[string]any{}}, true, RouteIgnore, ReasonRetweet},
		{"plain keyword mode", RawEvent{"text": "x"}, false, RouteDedup, ""},
		{"plain geo mode", RawEvent{"text": "x"}, true, RouteGeo, ""},
		{"null text still has text field", RawEvent{"text": nil}, false, RouteDedup, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.event, tt.geoMode)
			assert.Equal(t, tt.route, c.Route)
			assert.Equal(t, tt.reason, c.Reason)
		})
	}
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "ignore", RouteIgnore.String())
	assert.Equal(t, "geo", RouteGeo.String())
	assert.Equal(t, "dedup", RouteDedup.String())
}
