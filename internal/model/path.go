package model

import (
	"sort"
	"strings"
)

// Path is an ordered sequence of links from a source device to a destination
// device, with the cost assigned by the weigher that found it.
type Path struct {
	Links []Link
	Cost  float64
}

// Src returns the first connect point of the path
func (p Path) Src() ConnectPoint {
	if len(p.Links) == 0 {
		return ConnectPoint{}
	}
	return p.Links[0].Src
}

// Dst returns the last connect point of the path
func (p Path) Dst() ConnectPoint {
	if len(p.Links) == 0 {
		return ConnectPoint{}
	}
	return p.Links[len(p.Links)-1].Dst
}

// Devices returns the devices visited by the path, in order
func (p Path) Devices() []DeviceID {
	if len(p.Links) == 0 {
		return nil
	}
	devices := make([]DeviceID, 0, len(p.Links)+1)
	devices = append(devices, p.Links[0].Src.Device)
	for _, l := range p.Links {
		devices = append(devices, l.Dst.Device)
	}
	return devices
}

// String returns the path as "src->dst, src->dst, ..."
func (p Path) String() string {
	parts := make([]string, len(p.Links))
	for i, l := range p.Links {
		parts[i] = l.Key().String()
	}
	return strings.Join(parts, ", ")
}

// DisjointPath is a pair of paths between the same devices that share no
// link. The primary is never more expensive than the backup.
type DisjointPath struct {
	Primary Path
	Backup  Path
}

// Cost returns the cost of the primary path
func (d DisjointPath) Cost() float64 {
	return d.Primary.Cost
}

// SortPaths orders paths by cost, then hop count, then link sequence, so that
// path sets compare equal regardless of discovery order.
func SortPaths(paths []Path) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		if len(a.Links) != len(b.Links) {
			return len(a.Links) < len(b.Links)
		}
		return a.String() < b.String()
	})
}
