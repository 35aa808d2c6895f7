package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_TypedAccessors(t *testing.T) {
	tree := NewTree(map[string]any{
		"device_id":       float64(2),
		"sampling_rate":   1.25,
		"name":            "sis3302-0",
		"invert_ext_lemo": true,
	}, nil)

	assert.Equal(t, 2, tree.Int("device_id", -1))
	assert.Equal(t, 1.25, tree.Float64("sampling_rate", 0))
	assert.Equal(t, "sis3302-0", tree.String("name", ""))
	assert.True(t, tree.Bool("invert_ext_lemo", false))
	assert.Equal(t, -1, tree.Int("missing", -1))
}

func TestTree_ChannelOffsetsClampsOutOfRange(t *testing.T) {
	tree := NewTree(map[string]any{
		"channel_offset": []any{0.1, 1.5, -0.2, 0.75},
	}, nil)

	offsets := tree.ChannelOffsets("channel_offset", 4)
	require.Len(t, offsets, 4)
	assert.Equal(t, 0.1, offsets[0])
	assert.Equal(t, 0.5, offsets[1], "out-of-range high value should clamp to 0.5")
	assert.Equal(t, 0.5, offsets[2], "out-of-range low value should clamp to 0.5")
	assert.Equal(t, 0.75, offsets[3])
}

func TestTree_ChannelOffsetsDefaultsWhenMissing(t *testing.T) {
	tree := NewTree(map[string]any{}, nil)
	offsets := tree.ChannelOffsets("channel_offset", 3)
	for _, v := range offsets {
		assert.Equal(t, 0.5, v)
	}
}

func TestTree_HexUint32(t *testing.T) {
	tree := NewTree(map[string]any{
		"base_address":      "0x1A2B",
		"pretrigger_samples": "FF",
		"device_id_numeric": float64(42),
	}, nil)

	assert.Equal(t, uint32(0x1A2B), tree.HexUint32("base_address", 0))
	assert.Equal(t, uint32(0xFF), tree.HexUint32("pretrigger_samples", 0))
	assert.Equal(t, uint32(42), tree.HexUint32("device_id_numeric", 0))
	assert.Equal(t, uint32(7), tree.HexUint32("missing", 7))
}

func TestTree_Float64Slice(t *testing.T) {
	tree := NewTree(map[string]any{
		"sampling_rates": []any{1.0, 2.5, 3.25},
	}, nil)

	assert.Equal(t, []float64{1.0, 2.5, 3.25}, tree.Float64Slice("sampling_rates", nil))
	assert.Nil(t, tree.Float64Slice("missing", nil))
}

func TestTree_GainSlice(t *testing.T) {
	tree := NewTree(map[string]any{
		"channel_gain": []any{"high", "low", "bogus"},
	}, nil)

	gains := tree.GainSlice("channel_gain", 4)
	require.Len(t, gains, 4)
	assert.Equal(t, "high", gains[0])
	assert.Equal(t, "low", gains[1])
	assert.Equal(t, "low", gains[2], "invalid entry should default to low")
	assert.Equal(t, "low", gains[3], "missing entry should default to low")
}

func TestTree_Sub(t *testing.T) {
	tree := NewTree(map[string]any{
		"writers": map[string]any{
			"online": map[string]any{
				"port":             float64(5555),
				"max_trace_length": float64(-1),
				"high_water_mark":  float64(10),
			},
		},
	}, nil)

	online := tree.Sub("writers").Sub("online")
	assert.Equal(t, 10, online.Int("high_water_mark", 0))
	assert.Equal(t, -1, online.Int("max_trace_length", 0))
}
