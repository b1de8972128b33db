package stream

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLog_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logfile.log")
	l := NewErrorLog(path)

	l.Record(ClassStatus, errors.New("stream status 500"))
	l.Record(ClassIdleTimeout, ErrIdleTimeout)
	l.Record(ClassStatus, nil)

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "status", entry["error_class"])
	assert.Equal(t, "stream status 500", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestErrorLog_NilDiscards(t *testing.T) {
	var l *ErrorLog
	assert.NotPanics(t, func() { l.Record(ClassProtocol, errors.New("x")) })
}

func TestErrorLog_AppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logfile.log")

	NewErrorLog(path).Record(ClassProtocol, errors.New("first"))
	NewErrorLog(path).Record(ClassProtocol, errors.New("second"))

	assert.Len(t, readLines(t, path), 2)
}

func TestTextLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.txt")
	l := NewTextLog(path)

	require.NoError(t, l.Append("breaking news "))
	require.NoError(t, l.Append(`say "hi" <b>`))

	assert.Equal(t, []string{`"breaking news "`, `"say \"hi\" <b>"`}, readLines(t, path))
}

func TestCoordinatesLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinates.txt")
	l := NewCoordinatesLog(path)

	require.NoError(t, l.Append("-73.9", "40.7"))
	require.NoError(t, l.Append("-118.25", "34.05"))

	assert.Equal(t, []string{"-73.9,40.7", "-118.25,34.05"}, readLines(t, path))
}

func TestAppendFile_MissingDirectory(t *testing.T) {
	l := NewCoordinatesLog(filepath.Join(t.TempDir(), "missing", "coordinates.txt"))
	assert.Error(t, l.Append("1", "2"))
}
