package stream

import (
	"bytes"
	"fmt"
	"strconv"

	"tweetcastr/internal/database"

	"github.com/goccy/go-json"
)

// Event field names.
const (
	FieldText            = "text"
	FieldCoordinates     = "coordinates"
	FieldRetweetedStatus = "retweeted_status"
)

// RawEvent is one decoded stream delivery. Numbers are kept as json.Number so
// they are written back exactly as received.
type RawEvent map[string]any

// DecodeEvent parses a payload into a RawEvent.
func DecodeEvent(payload []byte) (RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var ev RawEvent
	if err := dec.Decode(&ev); err != nil {
		preview := payload
		if len(preview) > 50 {
			preview = preview[:50]
		}
		return nil, &DecodeError{Preview: preview, Err: err}
	}
	if ev == nil {
		return nil, &DecodeError{Preview: payload, Err: fmt.Errorf("payload is not an object")}
	}
	return ev, nil
}

// Document returns the event as a storable document.
func (e RawEvent) Document() database.Document {
	return database.Document(e)
}

// HasText reports whether the event carries a text field.
func (e RawEvent) HasText() bool {
	_, ok := e[FieldText]
	return ok
}

// IsRetweet reports whether the event reshares another record.
func (e RawEvent) IsRetweet() bool {
	_, ok := e[FieldRetweetedStatus]
	return ok
}

// Text returns the text field.
func (e RawEvent) Text() (string, error) {
	v, ok := e[FieldText]
	if !ok {
		return "", &MissingFieldError{Field: FieldText}
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldTypeError{Field: FieldText, Want: "string", Got: v}
	}
	return s, nil
}

// Coordinates returns the longitude and latitude of a geo-tagged event as
// their textual form. ok is false when the field is absent or null.
func (e RawEvent) Coordinates() (lon, lat string, ok bool, err error) {
	v, present := e[FieldCoordinates]
	if !present || v == nil {
		return "", "", false, nil
	}

	point, isMap := v.(map[string]any)
	if !isMap {
		return "", "", false, &FieldTypeError{Field: FieldCoordinates, Want: "object", Got: v}
	}

	raw, present := point[FieldCoordinates]
	if !present {
		return "", "", false, &MissingFieldError{Field: "coordinates.coordinates"}
	}
	pair, isSlice := raw.([]any)
	if !isSlice {
		return "", "", false, &FieldTypeError{Field: "coordinates.coordinates", Want: "array", Got: raw}
	}
	if len(pair) < 2 {
		return "", "", false, &MissingFieldError{Field: fmt.Sprintf("coordinates.coordinates[%d]", len(pair))}
	}

	lon, err = numberString("coordinates.coordinates[0]", pair[0])
	if err != nil {
		return "", "", false, err
	}
	lat, err = numberString("coordinates.coordinates[1]", pair[1])
	if err != nil {
		return "", "", false, err
	}
	return lon, lat, true, nil
}

func numberString(field string, v any) (string, error) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	default:
		return "", &FieldTypeError{Field: field, Want: "number", Got: v}
	}
}
