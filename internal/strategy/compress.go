package strategy

import (
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultCompressionThreshold = 1024 // 1KB
	minCompressionSavings       = 0.10

	// maxDecompressedSize caps what a single column value may expand to.
	maxDecompressedSize = 16 * 1024 * 1024
)

const (
	flagNoCompression byte = 0x00
	flagZstd          byte = 0x01
)

var (
	errDecompressionFailed = errors.New("decompression failed")
	errUnknownFlag         = errors.New("unknown payload flag")
)

var (
	// zstd encoder and decoder are safe for concurrent EncodeAll/DecodeAll
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdOnce    sync.Once
	zstdErr     error
)

func initZstd() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
		if zstdErr != nil {
			zstdEncoder.Close()
			zstdEncoder = nil
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// maybeCompress returns the payload to seal and the flag byte describing it.
// Compression is skipped below threshold or when it saves less than 10%.
func maybeCompress(data []byte, threshold int) ([]byte, byte) {
	if threshold <= 0 || len(data) < threshold {
		return data, flagNoCompression
	}
	encoder, _, err := initZstd()
	if err != nil {
		return data, flagNoCompression
	}
	compressed := encoder.EncodeAll(data, nil)
	savings := float64(len(data)-len(compressed)) / float64(len(data))
	if savings < minCompressionSavings {
		return data, flagNoCompression
	}
	return compressed, flagZstd
}

func decompress(data []byte, flag byte) ([]byte, error) {
	switch flag {
	case flagNoCompression:
		return data, nil
	case flagZstd:
		_, decoder, err := initZstd()
		if err != nil {
			return nil, err
		}
		out, err := decoder.DecodeAll(data, nil)
		if err != nil || len(out) > maxDecompressedSize {
			return nil, errDecompressionFailed
		}
		return out, nil
	default:
		return nil, errUnknownFlag
	}
}
