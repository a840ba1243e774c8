package model

import (
	"fmt"
	"time"
)

// Event is a change notification that can trigger a topology recompute
type Event interface {
	// Time returns when the change happened
	Time() time.Time
	fmt.Stringer
}

// DeviceEventType represents the kind of device change
type DeviceEventType string

const (
	// DeviceAdded indicates a device was discovered
	DeviceAdded DeviceEventType = "device-added"

	// DeviceUpdated indicates device metadata changed
	DeviceUpdated DeviceEventType = "device-updated"

	// DeviceRemoved indicates a device was removed
	DeviceRemoved DeviceEventType = "device-removed"

	// DeviceAvailabilityChanged indicates a device went up or down
	DeviceAvailabilityChanged DeviceEventType = "device-availability-changed"
)

// DeviceEvent reports a change of a device
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
	At     time.Time
}

// Time returns when the change happened
func (e DeviceEvent) Time() time.Time {
	return e.At
}

// String returns a string representation of the event
func (e DeviceEvent) String() string {
	return fmt.Sprintf("%s: %s (available=%t)", e.Type, e.Device.ID, e.Device.Available)
}

// LinkEventType represents the kind of link change
type LinkEventType string

const (
	// LinkAdded indicates a link was discovered
	LinkAdded LinkEventType = "link-added"

	// LinkUpdated indicates a link changed type or state
	LinkUpdated LinkEventType = "link-updated"

	// LinkRemoved indicates a link vanished
	LinkRemoved LinkEventType = "link-removed"
)

// LinkEvent reports a change of a link
type LinkEvent struct {
	Type LinkEventType
	Link Link
	At   time.Time
}

// Time returns when the change happened
func (e LinkEvent) Time() time.Time {
	return e.At
}

// String returns a string representation of the event
func (e LinkEvent) String() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Link)
}
