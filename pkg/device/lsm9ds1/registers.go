package lsm9ds1

import "github.com/robotalks/legocar.go/pkg/device"

// Default addresses and identities.
const (
	AddrXG  device.Address = 0x6b
	AddrMag device.Address = 0x1e

	IDXG  byte = 0x68
	IDMag byte = 0x3d
)

// Accelerometer/gyroscope registers.
const (
	RegWhoAmIXG  byte = 0x0f
	RegCtrlReg1G byte = 0x10
	RegTempOutL  byte = 0x15
	RegOutXLG    byte = 0x18
	RegCtrlReg4  byte = 0x1e
	RegCtrlReg5X byte = 0x1f
	RegCtrlReg6X byte = 0x20
	RegCtrlReg8  byte = 0x22
	RegOutXLXL   byte = 0x28
)

// Magnetometer registers.
const (
	RegWhoAmIM   byte = 0x0f
	RegCtrlReg1M byte = 0x20
	RegCtrlReg2M byte = 0x21
	RegCtrlReg3M byte = 0x22
	RegCtrlReg4M byte = 0x23
	RegOutXLM    byte = 0x28
)

// Scales of the configured ranges.
const (
	AccelScale = 0.000061 // g/LSB at +-2g
	GyroScale  = 0.00875  // dps/LSB at 245dps
	MagScale   = 0.00014  // gauss/LSB at 4 gauss
	TempLSB    = 8.0      // LSB per degree celsius
)

type regWrite struct {
	reg, value byte
}

var (
	// soft reset of both chips.
	resetXG  = regWrite{RegCtrlReg8, 0x05}
	resetMag = regWrite{RegCtrlReg2M, 0x0c}

	setupXG = []regWrite{
		{RegCtrlReg1G, 0xc0}, // gyro 952Hz, 245dps
		{RegCtrlReg4, 0x38},  // gyro xyz enabled
		{RegCtrlReg5X, 0x38}, // accel xyz enabled
		{RegCtrlReg6X, 0xc0}, // accel 952Hz, 2g
	}
	setupMag = []regWrite{
		{RegCtrlReg1M, 0xfc}, // temp compensation, ultra-high xy, 80Hz
		{RegCtrlReg2M, 0x00}, // 4 gauss
		{RegCtrlReg3M, 0x00}, // continuous conversion
		{RegCtrlReg4M, 0x0c}, // ultra-high z
	}
)
