package artifact

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// zstd encoders and decoders are reused across artifacts; EncodeAll and
// DecodeAll keep no state between calls.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

// EncodeModel gob-encodes env and compresses it with zstd.
func EncodeModel(env *model.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := model.SaveModelToWriter(env, &buf); err != nil {
		return nil, err
	}

	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeModel reverses EncodeModel.
func DecodeModel(data []byte) (*model.Envelope, error) {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompression failed")
	}
	return model.LoadModelFromReader(bytes.NewReader(raw))
}
