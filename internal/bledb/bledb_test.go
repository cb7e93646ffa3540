package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	olfactoryService = "de664a17-7db4-449f-97ba-5514e19a9d94"
	formaldehydeChar = "6a135b89-f360-4f64-86fc-5a14092034b4"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ESS short form", input: "181a", expected: "181a"},
		{name: "ESS uppercase with 0x", input: "0x181A", expected: "181a"},
		{name: "ESS on the SIG base", input: "0000181a-0000-1000-8000-00805f9b34fb", expected: "181a"},
		{name: "ESS on the SIG base, uppercase, no dashes", input: "0000181A00001000800000805F9B34FB", expected: "181a"},
		{name: "methane on the SIG base in braces", input: "{00002bd1-0000-1000-8000-00805f9b34fb}", expected: "2bd1"},
		{name: "ammonia with surrounding space", input: " 00002BCF-0000-1000-8000-00805F9B34FB ", expected: "2bcf"},
		{name: "olfactory service stays 128-bit", input: olfactoryService, expected: "de664a177db4449f97ba5514e19a9d94"},
		{name: "odor characteristic uppercase", input: "4C28FCB8-D69B-404A-8668-41655D814E7F", expected: "4c28fcb8d69b404a866841655d814e7f"},
		{name: "32-bit value on the SIG base is not shortened", input: "12342bd1-0000-1000-8000-00805f9b34fb", expected: "12342bd100001000800000805f9b34fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestLookupService(t *testing.T) {
	assert.Equal(t, "Environmental Sensing", LookupService("181A"))
	assert.Equal(t, "Environmental Sensing", LookupService("0000181a-0000-1000-8000-00805f9b34fb"))
	assert.Empty(t, LookupService(olfactoryService), "vendor services have no SIG name")
	assert.Empty(t, LookupService("2bd1"), "a characteristic UUID is not a service")
}

func TestLookupCharacteristic(t *testing.T) {
	// GOAL: Verify every SIG gas characteristic of the sensor resolves to its assigned name
	//
	// TEST SCENARIO: Full-form gas UUIDs → SIG names; vendor olfactory characteristics → empty

	tests := []struct {
		uuid     string
		expected string
	}{
		{"00002bd1-0000-1000-8000-00805f9b34fb", "Methane Concentration"},
		{"00002bd2-0000-1000-8000-00805f9b34fb", "Nitrogen Dioxide Concentration"},
		{"00002bd3-0000-1000-8000-00805f9b34fb", "Non-Methane Volatile Organic Compounds Concentration"},
		{"00002bcf-0000-1000-8000-00805f9b34fb", "Ammonia Concentration"},
		{formaldehydeChar, ""},
		{"87dc71bd-29a4-4218-a2a7-83fd2a69cc40", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uuid, func(t *testing.T) {
			assert.Equal(t, tt.expected, LookupCharacteristic(tt.uuid))
		})
	}

	assert.Equal(t, LookupCharacteristic("2BD2"), LookupCharacteristic("0x2bd2"), "short forms MUST resolve like full ones")
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "16-bit gas characteristic", input: "2bd1", valid: true},
		{name: "128-bit olfactory service", input: olfactoryService, valid: true},
		{name: "ESS on the SIG base", input: "0000181a-0000-1000-8000-00805f9b34fb", valid: true},
		{name: "32-bit", input: "00002bcf", valid: true},
		{name: "empty", input: "", valid: false},
		{name: "label instead of UUID", input: "Methane", valid: false},
		{name: "three hex digits", input: "18a", valid: false},
		{name: "truncated 128-bit", input: "de664a17-7db4-449f-97ba", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValid(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"0x181A", "00002bd3-0000-1000-8000-00805f9b34fb", formaldehydeChar})
	assert.Equal(t, []string{"181a", "2bd3", "6a135b89f3604f6486fc5a14092034b4"}, got)
	assert.Empty(t, NormalizeUUIDs(nil))
}
