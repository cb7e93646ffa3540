// Package device defines the BLE adapter capability set the gas-sensor
// session depends on: scanning, connecting, GATT discovery, MTU exchange and
// per-characteristic notification streams.
//
// Concrete stacks live in sub-packages (go-ble, tinygo). Errors coming out
// of a stack are normalized to the sentinels in this package so callers can
// use errors.Is regardless of the backend.
package device
