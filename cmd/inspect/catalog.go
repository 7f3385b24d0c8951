package main

import (
	"sort"

	"github.com/typemesh/wirepack/reflector"
)

// Sample aggregate types for layout inspection. The inspector derives their
// wire layouts the same way transmission would.
type point struct {
	X, Y int32
}

type particle struct {
	Position [3]float64
	Velocity [3]float64
	Mass     float64
	ID       int64
}

type reading struct {
	Sensor    int32
	Timestamp int64
	Values    [4]float32
	Valid     bool
}

type header struct {
	Magic   uint32
	Version uint16
	Flags   uint16
	Length  int64
}

type nested struct {
	Origin point
	Bounds [2]point
	Depth  int8
}

type catalogEntry struct {
	name   string
	derive func() (*reflector.Layout, error)
}

func catalog() []catalogEntry {
	entries := []catalogEntry{
		{"point", func() (*reflector.Layout, error) { return reflector.Of[point]() }},
		{"particle", func() (*reflector.Layout, error) { return reflector.Of[particle]() }},
		{"reading", func() (*reflector.Layout, error) { return reflector.Of[reading]() }},
		{"header", func() (*reflector.Layout, error) { return reflector.Of[header]() }},
		{"nested", func() (*reflector.Layout, error) { return reflector.Of[nested]() }},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}
