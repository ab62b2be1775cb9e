package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadCodec_SmallPayloadStaysPlain(t *testing.T) {
	codec, err := NewPayloadCodec(1024)
	require.NoError(t, err)
	defer codec.Close()

	in := AuditPayload{Warnings: []string{"high value movement"}}
	enc, err := codec.Encode(in)
	require.NoError(t, err)

	assert.Equal(t, CompressionNone, enc.Algo)
	assert.NotEmpty(t, enc.Plain)
	assert.Nil(t, enc.Compressed)

	out, err := codec.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in.Warnings, out.Warnings)
}

func TestPayloadCodec_LargePayloadCompressed(t *testing.T) {
	codec, err := NewPayloadCodec(64)
	require.NoError(t, err)
	defer codec.Close()

	in := AuditPayload{
		Warnings:     []string{strings.Repeat("capacity nearly reached ", 20)},
		RuleMetadata: map[string]any{"location_capacity_check": "95%"},
	}
	enc, err := codec.Encode(in)
	require.NoError(t, err)

	assert.Equal(t, CompressionZstd, enc.Algo)
	assert.Nil(t, enc.Plain)
	assert.NotEmpty(t, enc.Compressed)

	out, err := codec.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in.Warnings, out.Warnings)
	assert.Equal(t, "95%", out.RuleMetadata["location_capacity_check"])
}

func TestPayloadCodec_EmptyPayload(t *testing.T) {
	codec, err := NewPayloadCodec(0)
	require.NoError(t, err)
	defer codec.Close()

	enc, err := codec.Encode(AuditPayload{})
	require.NoError(t, err)
	assert.Nil(t, enc.Plain)
	assert.Nil(t, enc.Compressed)

	out, err := codec.Decode(enc)
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}
