// Package model defines the network elements the topology engine works on:
// devices, ports, links and paths.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceID identifies an infrastructure device
type DeviceID string

// PortNumber identifies a port on a device
type PortNumber uint64

// ConnectPoint is one end of a link: a device and one of its ports
type ConnectPoint struct {
	Device DeviceID
	Port   PortNumber
}

// NewConnectPoint creates a connect point
func NewConnectPoint(device DeviceID, port PortNumber) ConnectPoint {
	return ConnectPoint{Device: device, Port: port}
}

// ParseConnectPoint parses the "device/port" form produced by String
func ParseConnectPoint(s string) (ConnectPoint, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return ConnectPoint{}, fmt.Errorf("invalid connect point %q: expected device/port", s)
	}

	port, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return ConnectPoint{}, fmt.Errorf("invalid port in connect point %q: %w", s, err)
	}

	return ConnectPoint{Device: DeviceID(s[:i]), Port: PortNumber(port)}, nil
}

// String returns the "device/port" form of the connect point
func (cp ConnectPoint) String() string {
	return fmt.Sprintf("%s/%d", cp.Device, cp.Port)
}

// Less orders connect points by device, then port
func (cp ConnectPoint) Less(other ConnectPoint) bool {
	if cp.Device != other.Device {
		return cp.Device < other.Device
	}
	return cp.Port < other.Port
}

// Device is an infrastructure device known to the inventory
type Device struct {
	ID        DeviceID
	Available bool
}
