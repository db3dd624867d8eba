package tashtenhat

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cBaseAddr is the I²C slave address a TashTenHat answers on ('X' in
// ASCII). Every constructor in this package opens the device at this
// address; none of them takes an option to change it.
const i2cBaseAddr = 0x58

// ioctlI2CTarget is Linux's I2C_SLAVE ioctl request number
// (linux/i2c-dev.h), used to bind a file descriptor to a target address.
const ioctlI2CTarget = 0x0703

// i2cDevice is the subset of an open I²C character device a Driver
// needs; narrowed to an interface so tests can substitute a fake.
type i2cDevice interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openI2C opens path and binds it to addr (the TashTenHat's slave
// address, normally i2cBaseAddr) via the I2C_SLAVE ioctl.
func openI2C(path string, addr int) (i2cDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tashtenhat: opening %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), ioctlI2CTarget, addr); err != nil {
		f.Close()
		return nil, fmt.Errorf("tashtenhat: targeting I2C address 0x%02X on %s: %w", addr, path, err)
	}
	return f, nil
}
