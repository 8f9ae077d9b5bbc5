// Package feed turns the sensor bridge's line protocol into analyzer
// snapshots.
//
// The bridge emits one reading per line:
//
//	L,<angle_deg>,<distance_mm>   rangefinder return
//	A,<g>                         vertical acceleration
//	G,<lat>,<lon>                 position fix
//	E,<temp_c>,<pressure_hpa>     ambient conditions
package feed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

var (
	// ErrUnknownLine is returned for lines whose tag is not part of the
	// protocol, including blank lines and comments.
	ErrUnknownLine = errors.New("unknown line")
	// ErrMalformedLine is returned when a known tag carries the wrong
	// number of fields or a field does not parse.
	ErrMalformedLine = errors.New("malformed line")
)

// Kind identifies the reading carried by a parsed line.
type Kind int

const (
	KindLidar Kind = iota + 1
	KindAccel
	KindGPS
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindLidar:
		return "lidar"
	case KindAccel:
		return "accel"
	case KindGPS:
		return "gps"
	case KindEnvironment:
		return "environment"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reading is one parsed line. Only the field matching Kind is set.
type Reading struct {
	Kind        Kind
	Point       roadquality.LidarPoint
	Accel       float64
	GPS         roadquality.GPSFix
	Environment roadquality.Environment
}

// ParseLine parses one bridge line.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Reading{}, ErrUnknownLine
	}
	fields := strings.Split(line, ",")
	tag := strings.ToUpper(strings.TrimSpace(fields[0]))
	args := fields[1:]

	switch tag {
	case "L":
		v, err := parseFloats(line, args, 2)
		if err != nil {
			return Reading{}, err
		}
		if v[1] <= 0 {
			return Reading{}, fmt.Errorf("%w: %q: distance must be positive", ErrMalformedLine, line)
		}
		return Reading{Kind: KindLidar, Point: roadquality.LidarPoint{AngleDeg: foldAngle(v[0]), DistanceMM: v[1]}}, nil
	case "A":
		v, err := parseFloats(line, args, 1)
		if err != nil {
			return Reading{}, err
		}
		return Reading{Kind: KindAccel, Accel: v[0]}, nil
	case "G":
		v, err := parseFloats(line, args, 2)
		if err != nil {
			return Reading{}, err
		}
		if math.Abs(v[0]) > 90 || math.Abs(v[1]) > 180 {
			return Reading{}, fmt.Errorf("%w: %q: coordinates out of range", ErrMalformedLine, line)
		}
		return Reading{Kind: KindGPS, GPS: roadquality.GPSFix{Lat: v[0], Lon: v[1]}}, nil
	case "E":
		return parseEnvironment(line, args)
	default:
		return Reading{}, fmt.Errorf("%w: %q", ErrUnknownLine, line)
	}
}

func parseFloats(line string, args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: %q: want %d fields, got %d", ErrMalformedLine, line, n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q: field %d", ErrMalformedLine, line, i+1)
		}
		out[i] = v
	}
	return out, nil
}

// parseEnvironment accepts an empty field for a sensor that is not fitted,
// e.g. "E,,1008.2".
func parseEnvironment(line string, args []string) (Reading, error) {
	if len(args) != 2 {
		return Reading{}, fmt.Errorf("%w: %q: want 2 fields, got %d", ErrMalformedLine, line, len(args))
	}
	var env roadquality.Environment
	for i, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, fmt.Errorf("%w: %q: field %d", ErrMalformedLine, line, i+1)
		}
		if i == 0 {
			env.TemperatureC = &v
		} else {
			env.PressureHPa = &v
		}
	}
	return Reading{Kind: KindEnvironment, Environment: env}, nil
}

func foldAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
