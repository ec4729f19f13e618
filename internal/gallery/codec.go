package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/furnivision/furnivision/internal/design"
)

// EncodeDesign stores a design as zstd-compressed JSON. Thumbnails are data
// URLs and dominate the size, so compression pays off.
func EncodeDesign(d design.Design) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(enc).Encode(d); err != nil {
		enc.Close()
		return nil, fmt.Errorf("encode design: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compress design: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeDesign(data []byte) (design.Design, error) {
	var d design.Design
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return d, err
	}
	defer dec.Close()

	if err := json.NewDecoder(dec).Decode(&d); err != nil {
		return d, fmt.Errorf("decode design: %w", err)
	}
	return d, nil
}
