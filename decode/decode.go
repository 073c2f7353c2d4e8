// Package decode turns raw telemetry lines into typed samples.
//
// Lines are recognised by shape rather than by a schema version. Each shape
// is a matcher plus an extractor, tried in a fixed order; the first shape
// whose matcher accepts the line decides the outcome.
package decode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRejected marks a line that matched no shape or whose fields did not parse.
	ErrRejected = errors.New("line rejected")
	// ErrIgnored marks a line that is expected but carries no sample, such as
	// a header row or a blank line.
	ErrIgnored = errors.New("line ignored")
)

const (
	distanceLabel = "Dist:"
	headerPrefix  = "t["
)

// decorations are dropped before any field is extracted.
var decorations = strings.NewReplacer("°", "", "º", "")

var orientationPattern = regexp.MustCompile(`^([A-Za-z]+)\s*:\s*([^,\s]+)\s*,\s*([A-Za-z]+)\s*:\s*([^,\s]+)$`)

type shape struct {
	name    string
	match   func(line string) bool
	extract func(d *Decoder, line string) (Sample, error)
}

var shapes = []shape{
	{name: "orientation", match: orientationPattern.MatchString, extract: (*Decoder).orientation},
	{name: "distance", match: isDistance, extract: (*Decoder).distance},
	{name: "header", match: isHeader, extract: (*Decoder).header},
	{name: "plant", match: isPlant, extract: (*Decoder).plant},
}

// Decoder converts lines to samples. It is safe for concurrent use.
type Decoder struct {
	now   func() time.Time
	start time.Time
}

// Option configures a Decoder.
type Option func(d *Decoder)

// WithClock replaces time.Now as the source of Distance.ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) {
		d.now = now
	}
}

// New creates a Decoder. Distance timestamps count from this call.
func New(options ...Option) *Decoder {
	d := &Decoder{now: time.Now}
	for _, option := range options {
		option(d)
	}
	d.start = d.now()
	return d
}

// Decode returns the sample carried by line. The error, when not nil, wraps
// either ErrIgnored or ErrRejected; Decode never panics on malformed input.
func (d *Decoder) Decode(line string) (Sample, error) {
	line = strings.TrimSpace(decorations.Replace(strings.ToValidUTF8(line, "")))
	if line == "" {
		return nil, fmt.Errorf("%w: blank line", ErrIgnored)
	}
	for _, s := range shapes {
		if !s.match(line) {
			continue
		}
		sample, err := s.extract(d, line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		return sample, nil
	}
	return nil, fmt.Errorf("%w: unrecognised shape %q", ErrRejected, line)
}

func (d *Decoder) orientation(line string) (Sample, error) {
	m := orientationPattern.FindStringSubmatch(line)
	var o Orientation
	var haveRoll, havePitch bool
	for i := 1; i < len(m); i += 2 {
		v, err := parseField(m[i+1])
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(m[i]) {
		case "roll":
			o.Roll, haveRoll = v, true
		case "pitch":
			o.Pitch, havePitch = v, true
		}
	}
	if !haveRoll || !havePitch {
		return nil, fmt.Errorf("%w: labels %q and %q are not roll and pitch", ErrRejected, m[1], m[3])
	}
	return o, nil
}

func isDistance(line string) bool {
	return strings.HasPrefix(line, distanceLabel)
}

func (d *Decoder) distance(line string) (Sample, error) {
	fields := strings.Fields(strings.TrimPrefix(line, distanceLabel))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: missing value", ErrRejected)
	}
	v, err := parseField(fields[0])
	if err != nil {
		return nil, err
	}
	return Distance{
		Distance:   v,
		ObservedAt: d.now().Sub(d.start).Seconds(),
	}, nil
}

func isPlant(line string) bool {
	return strings.Count(line, ",") == 2
}

func isHeader(line string) bool {
	return strings.HasPrefix(line, headerPrefix)
}

func (d *Decoder) header(string) (Sample, error) {
	return nil, ErrIgnored
}

func (d *Decoder) plant(line string) (Sample, error) {
	parts := strings.Split(line, ",")
	var values [3]float64
	for i, part := range parts {
		v, err := parseField(part)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return Plant{T: values[0], U: values[1], V: values[2]}, nil
}

func parseField(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return v, nil
}
