// Package config loads a JSON configuration tree and exposes typed,
// defaulted accessors: callers read a key and a fallback value in one
// call instead of checking presence and type themselves.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fastdaq/daqcore/internal/interfaces"
)

// Tree is a loaded JSON configuration document with typed accessors.
type Tree struct {
	data   map[string]any
	logger interfaces.Logger
}

// Load reads and parses a JSON configuration file.
func Load(path string, logger interfaces.Logger) (*Tree, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &Tree{data: data, logger: logger}, nil
}

// NewTree wraps an already-decoded map, useful for tests and for
// embedding sub-config produced programmatically.
func NewTree(data map[string]any, logger interfaces.Logger) *Tree {
	if data == nil {
		data = map[string]any{}
	}
	return &Tree{data: data, logger: logger}
}

// Int returns the integer value at key, or def if absent or the wrong
// type.
func (t *Tree) Int(key string, def int) int {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return int(f)
}

// Float64 returns the float value at key, or def if absent.
func (t *Tree) Float64(key string, def float64) float64 {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}

// String returns the string value at key, or def if absent.
func (t *Tree) String(key string, def string) string {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Bool returns the bool value at key, or def if absent.
func (t *Tree) Bool(key string, def bool) bool {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// ChannelOffsets returns the per-channel DC offset fractions at key,
// clamping any value outside [0, 1] to 0.5 and logging a warning.
func (t *Tree) ChannelOffsets(key string, numChannels int) []float64 {
	out := make([]float64, numChannels)
	for i := range out {
		out[i] = 0.5
	}

	v, ok := t.data[key]
	if !ok {
		return out
	}
	raw, ok := v.([]any)
	if !ok {
		return out
	}

	for i, entry := range raw {
		if i >= numChannels {
			if t.logger != nil {
				t.logger.Errorf("config: too many channel_offset entries, device has %d channels", numChannels)
			}
			break
		}
		f, ok := entry.(float64)
		if !ok || f > 1 || f < 0 {
			if t.logger != nil {
				t.logger.Errorf("config: invalid channel_offset[%d], must be between 0 and 1, setting to 0.5", i)
			}
			out[i] = 0.5
			continue
		}
		out[i] = f
	}
	return out
}

// HexUint32 returns the unsigned integer at key, accepting either a
// JSON number or a hex string (with or without a "0x" prefix) — the
// shape base_address and pretrigger_samples are configured in. Returns
// def if the key is absent or neither shape parses.
func (t *Tree) HexUint32(key string, def uint32) uint32 {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case float64:
		return uint32(val)
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(val, "0x"), "0X")
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			if t.logger != nil {
				t.logger.Errorf("config: invalid hex value %q for %s, using default", val, key)
			}
			return def
		}
		return uint32(n)
	default:
		return def
	}
}

// Float64Slice returns the array of floats at key, or def if absent or
// the wrong type.
func (t *Tree) Float64Slice(key string, def []float64) []float64 {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	raw, ok := v.([]any)
	if !ok {
		return def
	}
	out := make([]float64, len(raw))
	for i, entry := range raw {
		f, ok := entry.(float64)
		if !ok {
			if t.logger != nil {
				t.logger.Errorf("config: non-numeric entry at %s[%d], using default", key, i)
			}
			return def
		}
		out[i] = f
	}
	return out
}

// GainSlice returns the per-channel gain setting ("high" or "low") at
// key, one entry per channel. Channels an absent or short array does
// not cover are filled with "low"; an entry outside {"high","low"} is
// also set to "low" and logged, as are entries past numChannels.
func (t *Tree) GainSlice(key string, numChannels int) []string {
	out := make([]string, numChannels)
	for i := range out {
		out[i] = "low"
	}

	v, ok := t.data[key]
	if !ok {
		return out
	}
	raw, ok := v.([]any)
	if !ok {
		return out
	}

	for i, entry := range raw {
		if i >= numChannels {
			if t.logger != nil {
				t.logger.Errorf("config: too many channel_gain entries, device has %d channels", numChannels)
			}
			break
		}
		s, ok := entry.(string)
		if !ok || (s != "high" && s != "low") {
			if t.logger != nil {
				t.logger.Errorf("config: invalid channel_gain[%d], must be \"high\" or \"low\", setting to \"low\"", i)
			}
			continue
		}
		out[i] = s
	}
	return out
}

// Sub returns the nested configuration tree at key (for dotted-path
// style sections such as "writers.online"), or an empty tree if absent
// or the wrong type.
func (t *Tree) Sub(key string) *Tree {
	v, ok := t.data[key]
	if !ok {
		return NewTree(nil, t.logger)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return NewTree(nil, t.logger)
	}
	return NewTree(m, t.logger)
}
