// Package polyline implements Google's Encoded Polyline Algorithm Format at the
// standard precision of five decimal places.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"fmt"
	"math"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

const (
	// Precision is the fixed-point scale of encoded values.
	Precision = 1e5

	minChar = 63
	maxChar = 126

	// maxShift bounds a single value's group run so a hostile string cannot overflow the accumulator.
	maxShift = 60
)

// MalformedInputError reports an encoded string that cannot be decoded completely.
type MalformedInputError struct {
	// Offset is the byte index at which decoding failed.
	Offset int
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed polyline at offset %d: %s", e.Offset, e.Reason)
}

// Decode converts an encoded polyline into its ordered coordinates.
// The same input always yields the same output. A string that ends inside a
// multi-byte group, leaves a latitude without its longitude, or contains bytes
// outside the polyline alphabet fails with *MalformedInputError.
func Decode(encoded string) ([]geo.Coordinate, error) {
	coords := make([]geo.Coordinate, 0, len(encoded)/4)
	index := 0
	var lat, lng int64

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, &MalformedInputError{Offset: next, Reason: "latitude without longitude"}
		}

		lngDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lat += latDelta
		lng += lngDelta

		coords = append(coords, geo.Coordinate{
			Latitude:  float64(lat) / Precision,
			Longitude: float64(lng) / Precision,
		})
	}

	return coords, nil
}

// decodeValue reads one zig-zag encoded delta starting at index.
// Returns the delta and the index of the first byte after it.
func decodeValue(encoded string, index int) (int64, int, error) {
	var result int64
	shift := uint(0)

	for {
		if index >= len(encoded) {
			return 0, index, &MalformedInputError{Offset: index, Reason: "input ends inside a multi-byte group"}
		}
		c := encoded[index]
		if c < minChar || c > maxChar {
			return 0, index, &MalformedInputError{Offset: index, Reason: fmt.Sprintf("byte 0x%02x outside polyline alphabet", c)}
		}
		if shift > maxShift {
			return 0, index, &MalformedInputError{Offset: index, Reason: "value too long"}
		}

		b := int64(c) - minChar
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	return (result >> 1) ^ -(result & 1), index, nil
}

// Encode converts coordinates into an encoded polyline, rounding each value to
// the nearest 1e-5 degree.
func Encode(coords []geo.Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(coords)*8)
	var prevLat, prevLng int64

	for _, c := range coords {
		lat := int64(math.Round(c.Latitude * Precision))
		lng := int64(math.Round(c.Longitude * Precision))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)

		prevLat = lat
		prevLng = lng
	}

	return string(buf)
}

func encodeValue(buf []byte, value int64) []byte {
	// zig-zag
	u := uint64(value << 1)
	if value < 0 {
		u = ^u
	}

	for u >= 0x20 {
		buf = append(buf, byte((u&0x1f)|0x20)+minChar)
		u >>= 5
	}
	return append(buf, byte(u)+minChar)
}
