package contracts

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

var ErrInvalidMetadata = errors.New("invalid svs metadata")

// Metadata is the key/value block embedded in native and thumbnail
// descriptions.
type Metadata map[string]string

// SortedKeys returns the keys in ascending byte order, the order in which they
// are serialized.
func (m Metadata) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SvsMetadata is the set of supported Aperio fields.
type SvsMetadata struct {
	MPP    *float64 // microns per pixel
	AppMag *int     // apparent magnification
}

// Strings translates the typed fields into their description form. MPP is
// printed with six decimals.
func (m SvsMetadata) Strings() (Metadata, error) {
	out := Metadata{}
	if m.AppMag != nil {
		if *m.AppMag <= 0 {
			return nil, fmt.Errorf("%w: AppMag %d", ErrInvalidMetadata, *m.AppMag)
		}
		out["AppMag"] = strconv.Itoa(*m.AppMag)
	}
	if m.MPP != nil {
		mpp := *m.MPP
		if math.IsNaN(mpp) || math.IsInf(mpp, 0) || mpp <= 0 {
			return nil, fmt.Errorf("%w: MPP %v", ErrInvalidMetadata, mpp)
		}
		out["MPP"] = strconv.FormatFloat(mpp, 'f', 6, 64)
	}
	return out, nil
}
