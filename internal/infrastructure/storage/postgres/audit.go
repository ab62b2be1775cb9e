package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgo specifies how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which zstd kicks in.
const DefaultCompressThreshold = 4 * 1024

// AuditPayload is the part of a movement record that is informational only:
// validation warnings and the rule measurements behind them.
type AuditPayload struct {
	Warnings     []string       `json:"warnings,omitempty"`
	RuleMetadata map[string]any `json:"ruleMetadata,omitempty"`
}

// IsEmpty reports whether there is nothing to store.
func (p AuditPayload) IsEmpty() bool {
	return len(p.Warnings) == 0 && len(p.RuleMetadata) == 0
}

// EncodedPayload is the column-level form of an AuditPayload.
// Exactly one of Plain / Compressed is set, or neither for an empty payload.
type EncodedPayload struct {
	Plain      json.RawMessage `db:"audit_payload"`
	Compressed []byte          `db:"audit_payload_zstd"`
	Algo       CompressionAlgo `db:"audit_compression"`
}

// PayloadCodec serializes audit payloads, compressing large ones with zstd.
// Safe for concurrent use: EncodeAll/DecodeAll do not share state.
type PayloadCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewPayloadCodec creates a codec. threshold <= 0 uses DefaultCompressThreshold.
func NewPayloadCodec(threshold int) (*PayloadCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}

	return &PayloadCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Encode marshals p and compresses it when larger than the threshold.
func (c *PayloadCodec) Encode(p AuditPayload) (EncodedPayload, error) {
	if p.IsEmpty() {
		return EncodedPayload{Algo: CompressionNone}, nil
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return EncodedPayload{}, fmt.Errorf("marshal audit payload: %w", err)
	}

	if len(raw) <= c.threshold {
		return EncodedPayload{Plain: raw, Algo: CompressionNone}, nil
	}

	return EncodedPayload{
		Compressed: c.encoder.EncodeAll(raw, nil),
		Algo:       CompressionZstd,
	}, nil
}

// Decode reverses Encode.
func (c *PayloadCodec) Decode(e EncodedPayload) (AuditPayload, error) {
	var p AuditPayload

	raw := []byte(e.Plain)
	if e.Algo == CompressionZstd && len(e.Compressed) > 0 {
		decompressed, err := c.decoder.DecodeAll(e.Compressed, nil)
		if err != nil {
			return p, fmt.Errorf("decompress audit payload: %w", err)
		}
		raw = decompressed
	}

	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return p, nil
}

// Close releases the encoder and decoder.
func (c *PayloadCodec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}
