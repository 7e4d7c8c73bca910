// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// MPU6050 register addresses.
const (
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regIntPinCfg   = 0x37
	regAccelXoutH  = 0x3B // start of the 14-byte accel/temp/gyro burst
	regUserCtrl    = 0x6A
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75

	burstLen = 14
)

// Bit positions used by EnableCompassBypass.
const (
	bitI2CMasterEn = 5 // USER_CTRL
	bitBypassEn    = 1 // INT_PIN_CFG
	bitSleep       = 6 // PWR_MGMT_1
)

// DefaultAddr is the address with AD0 tied low; 0x69 with AD0 high.
const DefaultAddr = 0x68

// RegisterInfo describes one configuration register.
type RegisterInfo struct {
	Addr        byte
	Name        string
	Description string
}

// RegisterValue is a register read back from the device.
type RegisterValue struct {
	RegisterInfo
	Value byte
}

type regWrite struct {
	reg byte
	val byte
}

// initSequence is written in order by Initialize. The gyro and accel ranges
// fix the raw scale to imu.GyroLSBPerDPS and imu.AccelLSBPerG.
var initSequence = []regWrite{
	{reg: regPwrMgmt1, val: 0x00},    // wake, internal oscillator
	{reg: regGyroConfig, val: 0x08},  // FS_SEL=1: ±500°/s, 65.5 LSB/°/s
	{reg: regAccelConfig, val: 0x10}, // AFS_SEL=2: ±8g, 4096 LSB/g
	{reg: regConfig, val: 0x03},      // DLPF_CFG=3: ~43Hz
}

// configRegisters are the registers reported by ReadRegisters.
var configRegisters = []RegisterInfo{
	{Addr: regConfig, Name: "CONFIG", Description: "FSYNC and digital low pass filter"},
	{Addr: regGyroConfig, Name: "GYRO_CONFIG", Description: "Gyroscope full scale range"},
	{Addr: regAccelConfig, Name: "ACCEL_CONFIG", Description: "Accelerometer full scale range"},
	{Addr: regIntPinCfg, Name: "INT_PIN_CFG", Description: "INT pin / auxiliary I2C bypass"},
	{Addr: regUserCtrl, Name: "USER_CTRL", Description: "FIFO and auxiliary I2C master enable"},
	{Addr: regPwrMgmt1, Name: "PWR_MGMT_1", Description: "Sleep, reset and clock source"},
	{Addr: regWhoAmI, Name: "WHO_AM_I", Description: "Device identity (0x68)"},
}
