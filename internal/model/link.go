package model

import (
	"fmt"
	"strings"
)

// LinkType represents the kind of a link
type LinkType int

const (
	// LinkDirect is a direct infrastructure link between two devices
	LinkDirect LinkType = iota

	// LinkIndirect is a link inferred across a non-controlled network
	LinkIndirect

	// LinkEdge connects a device to a host or to a remote domain
	LinkEdge

	// LinkTunnel is a tunnel between two devices
	LinkTunnel

	// LinkOptical is an optical link
	LinkOptical

	// LinkVirtual is a virtual link
	LinkVirtual
)

var linkTypeNames = map[LinkType]string{
	LinkDirect:   "direct",
	LinkIndirect: "indirect",
	LinkEdge:     "edge",
	LinkTunnel:   "tunnel",
	LinkOptical:  "optical",
	LinkVirtual:  "virtual",
}

// String returns the lower-case name of the link type
func (t LinkType) String() string {
	if name, ok := linkTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("LinkType(%d)", int(t))
}

// ParseLinkType parses a link type name, case-insensitively
func ParseLinkType(s string) (LinkType, error) {
	for t, name := range linkTypeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown link type %q", s)
}

// LinkState represents the operational state of a link
type LinkState int

const (
	// LinkActive means the link carries traffic
	LinkActive LinkState = iota

	// LinkInactive means the link is known but down
	LinkInactive
)

// String returns the lower-case name of the link state
func (s LinkState) String() string {
	switch s {
	case LinkActive:
		return "active"
	case LinkInactive:
		return "inactive"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// ParseLinkState parses a link state name, case-insensitively
func ParseLinkState(s string) (LinkState, error) {
	switch strings.ToLower(s) {
	case "active":
		return LinkActive, nil
	case "inactive":
		return LinkInactive, nil
	default:
		return 0, fmt.Errorf("unknown link state %q", s)
	}
}

// LinkKey identifies a link by its two ends
type LinkKey struct {
	Src ConnectPoint
	Dst ConnectPoint
}

// String returns "src->dst"
func (k LinkKey) String() string {
	return k.Src.String() + "->" + k.Dst.String()
}

// Link is a unidirectional connection between two connect points
type Link struct {
	Src   ConnectPoint
	Dst   ConnectPoint
	Type  LinkType
	State LinkState
}

// NewLink creates an active direct link
func NewLink(src, dst ConnectPoint) Link {
	return Link{Src: src, Dst: dst, Type: LinkDirect, State: LinkActive}
}

// Key returns the identity of the link
func (l Link) Key() LinkKey {
	return LinkKey{Src: l.Src, Dst: l.Dst}
}

// IsActive reports whether the link is in the active state
func (l Link) IsActive() bool {
	return l.State == LinkActive
}

// String returns a compact representation of the link
func (l Link) String() string {
	return fmt.Sprintf("%s->%s (%s, %s)", l.Src, l.Dst, l.Type, l.State)
}
