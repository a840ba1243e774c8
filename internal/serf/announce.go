package serf

import (
	"encoding/json"
	"fmt"

	"github.com/norncorp/mimir/internal/model"
)

// TopologyEventName is the name of the user event that carries link
// announcements
const TopologyEventName = "topology"

// Announcement is the payload of a topology user event. A node announces the
// complete set of links leaving it.
type Announcement struct {
	Node  string          `json:"n"`
	Links []AnnouncedLink `json:"l"`
}

// AnnouncedLink is a link leaving the announcing node
type AnnouncedLink struct {
	SrcPort uint64 `json:"sp"`
	Dst     string `json:"d"`
	DstPort uint64 `json:"dp"`
	Type    string `json:"t,omitempty"`
	State   string `json:"s,omitempty"`
}

// EncodeAnnouncement builds the payload announcing the links of node. Links
// that do not start at node are rejected.
func EncodeAnnouncement(node model.DeviceID, links []model.Link) ([]byte, error) {
	a := Announcement{Node: string(node), Links: make([]AnnouncedLink, 0, len(links))}
	for _, l := range links {
		if l.Src.Device != node {
			return nil, fmt.Errorf("link %s does not start at %s", l, node)
		}
		a.Links = append(a.Links, AnnouncedLink{
			SrcPort: uint64(l.Src.Port),
			Dst:     string(l.Dst.Device),
			DstPort: uint64(l.Dst.Port),
			Type:    l.Type.String(),
			State:   l.State.String(),
		})
	}
	return json.Marshal(a)
}

// DecodeAnnouncement parses a topology user event payload. Missing link
// types and states default to an active direct link.
func DecodeAnnouncement(data []byte) (model.DeviceID, []model.Link, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return "", nil, fmt.Errorf("failed to parse topology event: %w", err)
	}
	if a.Node == "" {
		return "", nil, fmt.Errorf("topology event without node")
	}

	node := model.DeviceID(a.Node)
	links := make([]model.Link, 0, len(a.Links))
	for _, al := range a.Links {
		if al.Dst == "" {
			return "", nil, fmt.Errorf("link from %s/%d without destination", a.Node, al.SrcPort)
		}
		link := model.NewLink(
			model.NewConnectPoint(node, model.PortNumber(al.SrcPort)),
			model.NewConnectPoint(model.DeviceID(al.Dst), model.PortNumber(al.DstPort)),
		)
		if al.Type != "" {
			t, err := model.ParseLinkType(al.Type)
			if err != nil {
				return "", nil, err
			}
			link.Type = t
		}
		if al.State != "" {
			s, err := model.ParseLinkState(al.State)
			if err != nil {
				return "", nil, err
			}
			link.State = s
		}
		links = append(links, link)
	}
	return node, links, nil
}
