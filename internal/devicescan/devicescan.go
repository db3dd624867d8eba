// Package devicescan enumerates candidate serial and I²C device nodes
// via udev (for x10d --list-devices), so an operator doesn't need to
// already know the OS path of the CM11A or TashTenHat they plugged in.
package devicescan

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Candidate is one device node udev reports as belonging to a subsystem
// x10d cares about.
type Candidate struct {
	Subsystem  string
	DevicePath string // e.g. /dev/ttyUSB0, /dev/i2c-1
	Vendor     string
	Model      string
}

// defaultSubsystems are the udev subsystems that can plausibly host a
// CM11A (USB-serial, "tty") or a TashTenHat (I²C adapter, "i2c-dev").
var defaultSubsystems = []string{"tty", "i2c-dev"}

// Scan enumerates currently attached devices in the given subsystems
// (defaultSubsystems if empty) that have a usable device node.
func Scan(subsystems []string) ([]Candidate, error) {
	if len(subsystems) == 0 {
		subsystems = defaultSubsystems
	}

	u := udev.Udev{}
	var out []Candidate
	for _, subsystem := range subsystems {
		e := u.NewEnumerate()
		if err := e.AddMatchSubsystem(subsystem); err != nil {
			return nil, fmt.Errorf("devicescan: matching subsystem %s: %w", subsystem, err)
		}
		devices, err := e.Devices()
		if err != nil {
			return nil, fmt.Errorf("devicescan: enumerating subsystem %s: %w", subsystem, err)
		}
		for _, d := range devices {
			node := d.Devnode()
			if node == "" {
				continue
			}
			out = append(out, Candidate{
				Subsystem:  subsystem,
				DevicePath: node,
				Vendor:     d.PropertyValue("ID_VENDOR"),
				Model:      d.PropertyValue("ID_MODEL"),
			})
		}
	}
	return out, nil
}
