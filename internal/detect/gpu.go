package detect

import (
	"encoding/csv"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pilotx/pilotx/internal/device"
)

var detectGPUsArgs = []string{
	"nvidia-smi", "--query-gpu=index,name,uuid", "--format=csv,noheader",
}

// detectGPUs returns the list of available Nvidia GPUs. A missing nvidia-smi
// just means no GPUs.
func detectGPUs() ([]device.Device, error) {
	// #nosec G204
	cmd := exec.Command(detectGPUsArgs[0], detectGPUsArgs[1:]...)
	out, err := cmd.Output()

	if execError, ok := err.(*exec.Error); ok && execError.Err == exec.ErrNotFound {
		return nil, nil
	} else if err != nil {
		log.WithError(err).WithField("output", string(out)).Warnf(
			"error while executing nvidia-smi to detect GPUs")
		return nil, nil
	}

	devices := make([]device.Device, 0)

	r := csv.NewReader(strings.NewReader(string(out)))
	for {
		record, err := r.Read()
		switch {
		case err == io.EOF:
			return devices, nil
		case err != nil:
			return nil, errors.Wrap(err, "error parsing output of nvidia-smi as CSV")
		case len(record) != 3:
			return nil, errors.New(
				"error parsing output of nvidia-smi; GPU record should have exactly 3 fields")
		}

		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.Wrap(
				err, "error parsing output of nvidia-smi; index of GPU cannot be converted to int")
		}

		devices = append(devices, device.Device{
			ID:    index,
			Brand: strings.TrimSpace(record[1]),
			UUID:  strings.TrimSpace(record[2]),
			Type:  device.GPU,
		})
	}
}
