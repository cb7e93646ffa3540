package device

import (
	"encoding/binary"
	"fmt"
)

// knownCompanies maps Bluetooth SIG company identifiers seen on gas sensor
// boards to display names.
var knownCompanies = map[uint16]string{
	0x0006: "Microsoft",
	0x004C: "Apple, Inc.",
	0x0059: "Nordic Semiconductor ASA",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x0131: "Cypress Semiconductor",
	0x02E5: "Espressif Systems",
	0x0822: "Adafruit Industries",
}

// CompanyID extracts the company identifier from manufacturer-specific data.
// The identifier occupies the first two bytes, little-endian.
func CompanyID(manufacturerData []byte) (uint16, error) {
	if len(manufacturerData) < 2 {
		return 0, fmt.Errorf("manufacturer data too short: %d bytes", len(manufacturerData))
	}
	return binary.LittleEndian.Uint16(manufacturerData[0:2]), nil
}

// ManufacturerName resolves the vendor of manufacturer-specific data.
// Unknown vendors are rendered as their hex company identifier; an empty
// string is returned when the data carries no identifier at all.
func ManufacturerName(manufacturerData []byte) string {
	id, err := CompanyID(manufacturerData)
	if err != nil {
		return ""
	}
	if name, ok := knownCompanies[id]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", id)
}
