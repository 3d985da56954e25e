// Package model defines the incident records flowing through the watch
// pipeline and their deduplication identity.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Canonical field names produced by the extractor. RawFields is keyed by
// these; absence of a key means the page did not expose that field.
const (
	FieldNumber       = "no"
	FieldTime         = "time"
	FieldType         = "type"
	FieldLocation     = "location"
	FieldLocationDesc = "location_desc"
	FieldArea         = "area"
)

// Coordinates is a WGS84 point parsed from a maps link on the incident
// detail panel.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders "lat,lon" using the shortest decimal form that round-trips,
// which preserves the digits scraped from the page.
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// IncidentRecord is one row of the CAD incident grid, optionally enriched
// with coordinates and detail lines from the row's detail postback. Records
// are built fresh every fetch cycle and never mutated.
type IncidentRecord struct {
	Number       string            `json:"number,omitempty"`
	Time         string            `json:"time"`
	Type         string            `json:"type,omitempty"`
	Location     string            `json:"location"`
	LocationDesc string            `json:"location_desc,omitempty"`
	Area         string            `json:"area,omitempty"`
	CommCenter   string            `json:"comm_center"`
	Coordinates  *Coordinates      `json:"coordinates,omitempty"`
	Details      []string          `json:"details,omitempty"`
	RawFields    map[string]string `json:"-"`
}

// keySep keeps adjacent identity fields from colliding ("a"+"bc" vs "ab"+"c").
const keySep = "\x1f"

// Key returns the incident's identity fingerprint: SHA-256 over the stable
// fields (comm center, time, location, type), hex encoded. Volatile fields
// such as detail text, area, or the grid's per-day number do not contribute,
// so the same real-world incident hashes identically across fetch cycles
// even when its details grow.
func (r *IncidentRecord) Key() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(r.CommCenter)),
		strings.TrimSpace(r.Time),
		strings.TrimSpace(r.Location),
		strings.TrimSpace(r.Type),
	}, keySep)))
	return hex.EncodeToString(h[:])
}

// HasCoordinates reports whether a coordinate pair was resolved for this
// record.
func (r *IncidentRecord) HasCoordinates() bool {
	return r.Coordinates != nil
}
