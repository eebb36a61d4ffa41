package model

import "vpn-subscription-bot/internal/domain"

// Device is the client platform a configuration is issued for.
type Device string

const (
	DeviceIOS     Device = "ios"
	DeviceAndroid Device = "android"
	DeviceWindows Device = "windows"
	DeviceMac     Device = "mac"
)

var Devices = []Device{DeviceIOS, DeviceAndroid, DeviceWindows, DeviceMac}

func ParseDevice(s string) (Device, error) {
	for _, d := range Devices {
		if string(d) == s {
			return d, nil
		}
	}
	return "", domain.ErrInvalidDevice
}
