// Package channels maps (service, characteristic) pairs of a gas-sensor
// peripheral to human-readable channel labels.
package channels

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/gasmon/internal/bledb"
	"gopkg.in/yaml.v3"
)

const (
	EnvironmentalSensingService = "0000181a-0000-1000-8000-00805f9b34fb"
	OlfactoryService            = "de664a17-7db4-449f-97ba-5514e19a9d94"
)

// Channel binds a characteristic of a service to a label.
type Channel struct {
	Service        string `yaml:"service" json:"service"`
	Characteristic string `yaml:"characteristic" json:"characteristic"`
	Label          string `yaml:"label" json:"label"`
	Unit           string `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Key returns the normalized (service, characteristic) lookup key
func (c Channel) Key() string {
	return key(c.Service, c.Characteristic)
}

func key(service, characteristic string) string {
	return bledb.NormalizeUUID(service) + "/" + bledb.NormalizeUUID(characteristic)
}

// Registry is an immutable, validated set of channels. Order is preserved.
type Registry struct {
	channels []Channel
	byKey    map[string]int
	byLabel  map[string]int
}

// NewRegistry validates channels and builds a Registry.
// Labels and (service, characteristic) pairs must be unique.
func NewRegistry(channels ...Channel) (*Registry, error) {
	r := &Registry{
		channels: make([]Channel, 0, len(channels)),
		byKey:    make(map[string]int, len(channels)),
		byLabel:  make(map[string]int, len(channels)),
	}

	for i, ch := range channels {
		ch.Label = strings.TrimSpace(ch.Label)
		if ch.Label == "" {
			return nil, fmt.Errorf("channel %d: label cannot be empty", i)
		}
		if err := ValidateUUID(ch.Service); err != nil {
			return nil, fmt.Errorf("channel %q: service: %w", ch.Label, err)
		}
		if err := ValidateUUID(ch.Characteristic); err != nil {
			return nil, fmt.Errorf("channel %q: characteristic: %w", ch.Label, err)
		}
		if _, dup := r.byLabel[ch.Label]; dup {
			return nil, fmt.Errorf("duplicate channel label %q", ch.Label)
		}
		k := ch.Key()
		if prev, dup := r.byKey[k]; dup {
			return nil, fmt.Errorf("channel %q: characteristic already mapped to %q", ch.Label, r.channels[prev].Label)
		}

		r.byKey[k] = len(r.channels)
		r.byLabel[ch.Label] = len(r.channels)
		r.channels = append(r.channels, ch)
	}

	return r, nil
}

// ValidateUUID accepts 16/32-bit hex short forms and RFC 4122 128-bit UUIDs.
func ValidateUUID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("uuid cannot be empty")
	}
	if len(bledb.NormalizeUUID(s)) > 8 {
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		return nil
	}
	if !bledb.IsValid(s) {
		return fmt.Errorf("invalid uuid %q", s)
	}
	return nil
}

// Lookup returns the channel mapped to the characteristic of service.
// Both UUIDs may be given in any form accepted by bledb.NormalizeUUID.
func (r *Registry) Lookup(service, characteristic string) (Channel, bool) {
	i, ok := r.byKey[key(service, characteristic)]
	if !ok {
		return Channel{}, false
	}
	return r.channels[i], true
}

// ByLabel returns the channel with the given label.
func (r *Registry) ByLabel(label string) (Channel, bool) {
	i, ok := r.byLabel[label]
	if !ok {
		return Channel{}, false
	}
	return r.channels[i], true
}

// All returns a copy of the channels in registration order.
func (r *Registry) All() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Labels returns channel labels in registration order.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.channels))
	for i, ch := range r.channels {
		out[i] = ch.Label
	}
	return out
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.channels)
}

// Select returns the channels whose labels are listed, in the order given.
// An empty list selects every channel.
func (r *Registry) Select(labels ...string) ([]Channel, error) {
	if len(labels) == 0 {
		return r.All(), nil
	}

	out := make([]Channel, 0, len(labels))
	var unknown []string
	for _, l := range labels {
		ch, ok := r.ByLabel(strings.TrimSpace(l))
		if !ok {
			unknown = append(unknown, l)
			continue
		}
		out = append(out, ch)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown channels: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// Default returns the registry of the reference gas-sensor deployment.
func Default() *Registry {
	r, err := NewRegistry(DefaultChannels()...)
	if err != nil {
		panic(fmt.Sprintf("channels: default table is invalid: %v", err))
	}
	return r
}

// DefaultChannels returns the channel table of the reference deployment.
func DefaultChannels() []Channel {
	return []Channel{
		{Service: EnvironmentalSensingService, Characteristic: "00002bd1-0000-1000-8000-00805f9b34fb", Label: "Methane", Unit: "ppm"},
		{Service: EnvironmentalSensingService, Characteristic: "00002bd2-0000-1000-8000-00805f9b34fb", Label: "Nitrogen Dioxide", Unit: "ppm"},
		{Service: EnvironmentalSensingService, Characteristic: "00002bd3-0000-1000-8000-00805f9b34fb", Label: "Volatile Organic Compounds", Unit: "ppm"},
		{Service: EnvironmentalSensingService, Characteristic: "00002bcf-0000-1000-8000-00805f9b34fb", Label: "Ammonia", Unit: "ppm"},
		{Service: OlfactoryService, Characteristic: "6a135b89-f360-4f64-86fc-5a14092034b4", Label: "Formaldehyde", Unit: "ppm"},
		{Service: OlfactoryService, Characteristic: "4c28fcb8-d69b-404a-8668-41655d814e7f", Label: "Odor"},
		{Service: OlfactoryService, Characteristic: "f8156843-6d98-4ba2-8014-1cf03d7dedb8", Label: "Ethanol", Unit: "ppm"},
		{Service: OlfactoryService, Characteristic: "87dc71bd-29a4-4218-a2a7-83fd2a69cc40", Label: "Hydrogen Sulfide", Unit: "ppm"},
	}
}

// File is the on-disk layout of a channel configuration file:
//
//	channels:
//	  - service: 0000181a-0000-1000-8000-00805f9b34fb
//	    characteristic: 00002bd1-0000-1000-8000-00805f9b34fb
//	    label: Methane
//	    unit: ppm
type File struct {
	Channels []Channel `yaml:"channels"`
}

// Parse builds a Registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse channel file: %w", err)
	}
	if len(f.Channels) == 0 {
		return nil, fmt.Errorf("channel file defines no channels")
	}
	return NewRegistry(f.Channels...)
}

// LoadFile reads a YAML channel file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Marshal renders the registry in the channel file format.
func (r *Registry) Marshal() ([]byte, error) {
	return yaml.Marshal(File{Channels: r.All()})
}
