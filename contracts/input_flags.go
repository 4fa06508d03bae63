package contracts

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	ErrInvalidWidth   = errors.New("invalid width")
	ErrInvalidFactors = errors.New("invalid factors")
)

const (
	BackendVips   = "vips"
	BackendMagick = "magick"
	BackendNative = "native"
)

const (
	DefaultBaseWidth = 16000
	DefaultTileSize  = 256
	DefaultAppMag    = 40
)

var DefaultLayersFactors = []float64{4, 16, 64}

type InputFlags struct {
	InputPath     string
	OutputPath    string
	ReportPath    string
	Backend       string
	LayersFactors []float64
	BaseWidth     int
	TileSize      int
	Workers       int
	AppMag        int
	MPPFromInput  bool
}

// Validate rejects configurations before any processing starts. On success
// LayersFactors is sorted ascending.
func (f *InputFlags) Validate() error {
	if f.InputPath == "" || f.OutputPath == "" {
		return errors.New("input and output paths required")
	}
	if f.BaseWidth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, f.BaseWidth)
	}
	if f.TileSize <= 0 || f.TileSize%16 != 0 {
		return fmt.Errorf("tile size must be a positive multiple of 16, got %d", f.TileSize)
	}
	for _, factor := range f.LayersFactors {
		if !ValidFactor(factor) {
			return fmt.Errorf("%w: %v", ErrInvalidFactors, factor)
		}
	}
	switch f.Backend {
	case BackendVips, BackendMagick, BackendNative:
	default:
		return fmt.Errorf("unknown backend: %s", f.Backend)
	}
	if f.Workers < 1 {
		f.Workers = 1
	}
	slices.Sort(f.LayersFactors)
	return nil
}

// ParseBaseWidth accepts a strictly positive decimal integer.
func ParseBaseWidth(s string) (int, error) {
	width, err := strconv.ParseUint(strings.TrimSpace(s), 10, 31)
	if err != nil || width == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWidth, s)
	}
	return int(width), nil
}

// ParseLayersFactors parses a comma separated list such as "4,16,64" and
// returns it sorted ascending. Zero, negative and non-numeric entries are
// rejected.
func ParseLayersFactors(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidFactors)
	}
	parts := strings.Split(strings.TrimSuffix(s, ","), ",")
	factors := make([]float64, 0, len(parts))
	for _, part := range parts {
		factor, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || !ValidFactor(factor) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFactors, part)
		}
		factors = append(factors, factor)
	}
	slices.Sort(factors)
	return factors, nil
}

// ValidFactor reports whether f can downsample a layer: finite and positive.
func ValidFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
