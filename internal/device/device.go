// Package device describes the compute resources a pilot advertises to the
// scheduler.
package device

import "fmt"

// Type is the type of a device.
type Type string

const (
	// CPU represents a CPU device.
	CPU Type = "cpu"
	// GPU represents a GPU device.
	GPU Type = "gpu"
)

// Device represents a single compute device on a pilot.
type Device struct {
	ID    int    `json:"id"`
	Brand string `json:"brand"`
	UUID  string `json:"uuid"`
	Type  Type   `json:"type"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s%d (%s)", d.Type, d.ID, d.Brand)
}
