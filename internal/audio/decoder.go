// ABOUTME: Multi-codec audio decoder
// ABOUTME: Supports PCM, Opus, FLAC, and MP3 chunk decoding
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"gopkg.in/hraban/opus.v2"
)

// Decoder decodes encoded audio chunks to PCM int32 samples
type Decoder interface {
	Decode(data []byte) ([]int32, error)
	Close() error
}

// NewDecoder creates a decoder for the specified format
func NewDecoder(format Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return &PCMDecoder{bitDepth: format.BitDepth}, nil
	case "opus":
		return NewOpusDecoder(format)
	case "flac":
		return NewFLACDecoder(format)
	case "mp3":
		return &MP3Decoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// PCMDecoder decodes raw PCM (16-bit or 24-bit)
type PCMDecoder struct {
	bitDepth int
}

func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.bitDepth == 24 {
		// 24-bit PCM: 3 bytes per sample
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = SampleFrom24Bit(b)
		}
		return samples, nil
	}

	// 16-bit PCM: 2 bytes per sample (default)
	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = SampleFromInt16(sample16)
	}
	return samples, nil
}

func (d *PCMDecoder) Close() error {
	return nil
}

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  Format
}

func NewOpusDecoder(format Format) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
	}, nil
}

func (d *OpusDecoder) Decode(data []byte) ([]int32, error) {
	// Opus decoder outputs to int16 buffer
	pcmSize := 5760 * d.format.Channels // Max frame size
	pcm16 := make([]int16, pcmSize)

	n, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	// Convert int16 to int32 (Opus is always 16-bit)
	actualSamples := n * d.format.Channels
	pcm32 := make([]int32, actualSamples)
	for i := 0; i < actualSamples; i++ {
		pcm32[i] = SampleFromInt16(pcm16[i])
	}
	return pcm32, nil
}

func (d *OpusDecoder) Close() error {
	return nil
}

// FLACDecoder decodes FLAC audio chunk by chunk. Each chunk is one or more
// complete FLAC frames; the stream's STREAMINFO arrives out of band as the
// codec header and is prepended so mewkiz/flac can parse the frames.
type FLACDecoder struct {
	format Format
}

func NewFLACDecoder(format Format) (*FLACDecoder, error) {
	if len(format.CodecHeader) == 0 {
		return nil, fmt.Errorf("flac decoder requires a codec header")
	}
	return &FLACDecoder{
		format: format,
	}, nil
}

func (d *FLACDecoder) Decode(data []byte) ([]int32, error) {
	stream, err := flac.New(io.MultiReader(
		bytes.NewReader(d.format.CodecHeader),
		bytes.NewReader(data),
	))
	if err != nil {
		return nil, fmt.Errorf("flac parse failed: %w", err)
	}
	defer stream.Close()

	var samples []int32
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame decode failed: %w", err)
		}

		channels := len(f.Subframes)
		if channels == 0 {
			continue
		}
		shift := 24 - int(f.BitsPerSample)

		blockSize := int(f.BlockSize)
		for i := 0; i < blockSize; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, f.Subframes[ch].Samples[i]<<shift)
			}
		}
	}

	return samples, nil
}

func (d *FLACDecoder) Close() error {
	return nil
}

// MP3Decoder decodes MP3 audio
type MP3Decoder struct{}

func (d *MP3Decoder) Decode(data []byte) ([]int32, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	// Read decoded PCM data (int16 as bytes)
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := len(pcm) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = SampleFromInt16(sample16)
	}

	return samples, nil
}

func (d *MP3Decoder) Close() error {
	return nil
}

// DecodeBase64Header decodes a base64-encoded codec header
func DecodeBase64Header(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
