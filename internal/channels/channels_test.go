package channels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()

	assert.Equal(t, 8, r.Len())
	assert.Equal(t, []string{
		"Methane", "Nitrogen Dioxide", "Volatile Organic Compounds", "Ammonia",
		"Formaldehyde", "Odor", "Ethanol", "Hydrogen Sulfide",
	}, r.Labels())
}

func TestRegistry_Lookup(t *testing.T) {
	r := Default()

	tests := []struct {
		name           string
		service        string
		characteristic string
		label          string
		found          bool
	}{
		{
			name:           "full SIG UUIDs",
			service:        "0000181a-0000-1000-8000-00805f9b34fb",
			characteristic: "00002bd1-0000-1000-8000-00805f9b34fb",
			label:          "Methane",
			found:          true,
		},
		{
			name:           "short forms as reported by go-ble",
			service:        "181a",
			characteristic: "2bcf",
			label:          "Ammonia",
			found:          true,
		},
		{
			name:           "vendor UUIDs without dashes, upper case",
			service:        "DE664A177DB4449F97BA5514E19A9D94",
			characteristic: "87DC71BD29A44218A2A783FD2A69CC40",
			label:          "Hydrogen Sulfide",
			found:          true,
		},
		{
			name:           "characteristic in the wrong service",
			service:        OlfactoryService,
			characteristic: "2bd1",
			found:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, ok := r.Lookup(tt.service, tt.characteristic)

			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.label, ch.Label)
		})
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	valid := Channel{Service: "181a", Characteristic: "2bd1", Label: "Methane"}

	tests := []struct {
		name     string
		channels []Channel
		errMsg   string
	}{
		{
			name:     "empty label",
			channels: []Channel{{Service: "181a", Characteristic: "2bd1", Label: "  "}},
			errMsg:   "label cannot be empty",
		},
		{
			name:     "invalid service",
			channels: []Channel{{Service: "not-a-uuid", Characteristic: "2bd1", Label: "X"}},
			errMsg:   "service",
		},
		{
			name:     "invalid 128-bit characteristic",
			channels: []Channel{{Service: "181a", Characteristic: "6a135b89-f360-4f64-86fc-5a14092034zz", Label: "X"}},
			errMsg:   "characteristic",
		},
		{
			name:     "duplicate label",
			channels: []Channel{valid, {Service: "181a", Characteristic: "2bd2", Label: "Methane"}},
			errMsg:   "duplicate channel label",
		},
		{
			name:     "duplicate characteristic",
			channels: []Channel{valid, {Service: "0000181a-0000-1000-8000-00805f9b34fb", Characteristic: "00002bd1-0000-1000-8000-00805f9b34fb", Label: "CH4"}},
			errMsg:   "already mapped to \"Methane\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.channels...)

			assert.Nil(t, r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRegistry_Select(t *testing.T) {
	r := Default()

	t.Run("empty selects all", func(t *testing.T) {
		all, err := r.Select()
		require.NoError(t, err)
		assert.Len(t, all, 8)
	})

	t.Run("keeps requested order", func(t *testing.T) {
		sel, err := r.Select("Odor", "Methane")
		require.NoError(t, err)
		require.Len(t, sel, 2)
		assert.Equal(t, "Odor", sel[0].Label)
		assert.Equal(t, "Methane", sel[1].Label)
	})

	t.Run("unknown labels are reported", func(t *testing.T) {
		_, err := r.Select("Methane", "Radon", "Xenon")
		require.Error(t, err)
		assert.Equal(t, "unknown channels: Radon, Xenon", err.Error())
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "channels.yaml")
		content := `
channels:
  - service: 0000181a-0000-1000-8000-00805f9b34fb
    characteristic: 00002bd1-0000-1000-8000-00805f9b34fb
    label: Methane
    unit: ppm
  - service: de664a17-7db4-449f-97ba-5514e19a9d94
    characteristic: 4c28fcb8-d69b-404a-8668-41655d814e7f
    label: Odor
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		r, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"Methane", "Odor"}, r.Labels())
		ch, ok := r.ByLabel("Methane")
		require.True(t, ok)
		assert.Equal(t, "ppm", ch.Unit)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read channel file")
	})

	t.Run("no channels", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("channels: []\n"), 0o600))

		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "defines no channels")
	})
}

func TestRegistry_MarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	r, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().All(), r.All())
}
