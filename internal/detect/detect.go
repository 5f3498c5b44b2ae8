// Package detect discovers the compute devices available to the pilot.
package detect

import (
	"github.com/pkg/errors"

	"github.com/pilotx/pilotx/internal/device"
)

// Detect returns the devices the pilot should advertise for the given slot
// type.
func Detect(slotType string) ([]device.Device, error) {
	switch slotType {
	case "none":
		return []device.Device{}, nil
	case "gpu":
		devices, err := detectGPUs()
		if err != nil {
			return nil, errors.Wrap(err, "error while gathering GPU info through nvidia-smi command")
		}
		return devices, nil
	case "cpu":
		return detectCPUs()
	case "auto", "":
		devices, err := detectGPUs()
		if err != nil {
			return nil, errors.Wrap(err, "error while gathering GPU info through nvidia-smi command")
		}
		if len(devices) == 0 {
			return detectCPUs()
		}
		return devices, nil
	default:
		return nil, errors.Errorf("unrecognized slot type: %s", slotType)
	}
}
