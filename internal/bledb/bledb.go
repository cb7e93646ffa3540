// Package bledb normalizes BLE UUIDs and resolves Bluetooth SIG assigned
// numbers to human-readable names.
package bledb

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID tail (xxxxxxxx-0000-1000-8000-00805f9b34fb)
// in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format: lowercase hex, no dashes,
// no braces, no 0x prefix. 16-bit UUIDs on the Bluetooth SIG base are shortened,
// so "0000181a-0000-1000-8000-00805f9b34fb" becomes "181a".
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes every UUID in the slice.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// IsValid reports whether uuid normalizes to a 16-, 32- or 128-bit hex UUID.
func IsValid(uuid string) bool {
	n := NormalizeUUID(uuid)
	switch len(n) {
	case 4, 8, 32:
	default:
		return false
	}
	for _, r := range n {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// LookupService returns the SIG name of a service UUID, or "" when unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"181a": "Environmental Sensing",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a6d": "Pressure",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
	"2bcf": "Ammonia Concentration",
	"2bd0": "Carbon Monoxide Concentration",
	"2bd1": "Methane Concentration",
	"2bd2": "Nitrogen Dioxide Concentration",
	"2bd3": "Non-Methane Volatile Organic Compounds Concentration",
	"2bd4": "Ozone Concentration",
}
