package stream

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Default side file names.
const (
	DefaultErrorLogPath       = "logfile.log"
	DefaultCoordinatesLogPath = "coordinates.txt"
)

// appendFile is an io.Writer that opens path for appending on every write,
// creating it if absent. Nothing is buffered.
type appendFile struct {
	path string
}

func (a *appendFile) Write(p []byte) (int, error) {
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// ErrorLog is the write-only audit trail of handled errors: one JSON line per
// error with its message and timestamp.
type ErrorLog struct {
	logger zerolog.Logger
}

// NewErrorLog appends entries to the file at path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{
		logger: zerolog.New(&appendFile{path: path}).With().Timestamp().Logger(),
	}
}

// Record appends one entry. A nil ErrorLog discards it.
func (l *ErrorLog) Record(class string, err error) {
	if l == nil || err == nil {
		return
	}
	l.logger.Error().Str("error_class", class).Msg(err.Error())
}

// TextLog records the text of every event persisted through the dedup path,
// one JSON string per line.
type TextLog struct {
	file *appendFile
}

// NewTextLog appends to the file at path.
func NewTextLog(path string) *TextLog {
	return &TextLog{file: &appendFile{path: path}}
}

// Append writes text as a JSON string followed by a newline.
func (l *TextLog) Append(text string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(text); err != nil {
		return err
	}
	_, err := l.file.Write(buf.Bytes())
	return err
}

// CoordinatesLog records the point of every persisted geo event as "lon,lat".
type CoordinatesLog struct {
	file *appendFile
}

// NewCoordinatesLog appends to the file at path.
func NewCoordinatesLog(path string) *CoordinatesLog {
	return &CoordinatesLog{file: &appendFile{path: path}}
}

// Append writes one "lon,lat" line.
func (l *CoordinatesLog) Append(lon, lat string) error {
	_, err := fmt.Fprintf(l.file, "%s,%s\n", lon, lat)
	return err
}
