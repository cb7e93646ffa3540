// Package tinygo implements the device abstraction on top of
// tinygo.org/x/bluetooth, which talks to BlueZ over D-Bus.
//
// The backend is Linux only. Unlike the go-ble HCI backend it does not need
// exclusive access to the controller, so it coexists with bluetoothd.
package tinygo
