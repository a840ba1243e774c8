package topology

import (
	"errors"
	"time"

	"github.com/norncorp/mimir/internal/model"
)

// ErrStaleDescription is returned when a description is older than the
// topology it would replace.
var ErrStaleDescription = errors.New("topology description is stale")

// Description is the raw input a topology is computed from: the devices and
// links known at a point in time.
type Description struct {
	Time    time.Time
	Devices []model.DeviceID
	Links   []model.Link
}

// NewDescription builds a description from inventory contents. Unavailable
// devices are left out, and so is every link with an end on a device that is
// not part of the description, which keeps the graph consistent.
func NewDescription(at time.Time, devices []model.Device, links []model.Link) Description {
	desc := Description{Time: at}

	known := make(map[model.DeviceID]struct{}, len(devices))
	for _, d := range devices {
		if !d.Available {
			continue
		}
		if _, dup := known[d.ID]; dup {
			continue
		}
		known[d.ID] = struct{}{}
		desc.Devices = append(desc.Devices, d.ID)
	}

	for _, l := range links {
		if _, ok := known[l.Src.Device]; !ok {
			continue
		}
		if _, ok := known[l.Dst.Device]; !ok {
			continue
		}
		desc.Links = append(desc.Links, l)
	}

	return desc
}
