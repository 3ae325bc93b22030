// ABOUTME: Binary media frame codec
// ABOUTME: Fixed 13-byte header: timestamp, codec tag, payload length
package protocol

import (
	"encoding/binary"
	"fmt"
)

// MediaFrameHeaderSize is the fixed binary header size:
// 8-byte presentation timestamp + 1-byte codec tag + 4-byte payload length
const MediaFrameHeaderSize = 8 + 1 + 4

// Codec tags for binary media frames. The authoritative codec is the
// active stream descriptor; the tag is validated against it.
const (
	CodecTagPCM  = 0
	CodecTagOpus = 1
	CodecTagFLAC = 2
	CodecTagMP3  = 3
)

// MediaFrame is one timestamped chunk of encoded audio
type MediaFrame struct {
	Timestamp int64 // Server µs at which the first sample plays
	CodecTag  byte
	Payload   []byte
}

// CodecName maps a binary codec tag to its stream codec name
func CodecName(tag byte) (string, bool) {
	switch tag {
	case CodecTagPCM:
		return "pcm", true
	case CodecTagOpus:
		return "opus", true
	case CodecTagFLAC:
		return "flac", true
	case CodecTagMP3:
		return "mp3", true
	default:
		return "", false
	}
}

// CodecTag maps a stream codec name to its binary tag
func CodecTag(codec string) (byte, bool) {
	switch codec {
	case "pcm":
		return CodecTagPCM, true
	case "opus":
		return CodecTagOpus, true
	case "flac":
		return CodecTagFLAC, true
	case "mp3":
		return CodecTagMP3, true
	default:
		return 0, false
	}
}

// DecodeMediaFrame parses a binary media frame
func DecodeMediaFrame(data []byte) (MediaFrame, error) {
	if len(data) < MediaFrameHeaderSize {
		return MediaFrame{}, fmt.Errorf("media frame too short: %d bytes", len(data))
	}

	timestamp := int64(binary.BigEndian.Uint64(data[0:8]))
	codecTag := data[8]
	payloadLen := binary.BigEndian.Uint32(data[9:13])

	if int(payloadLen) != len(data)-MediaFrameHeaderSize {
		return MediaFrame{}, fmt.Errorf("media frame payload length mismatch: header says %d, have %d",
			payloadLen, len(data)-MediaFrameHeaderSize)
	}

	return MediaFrame{
		Timestamp: timestamp,
		CodecTag:  codecTag,
		Payload:   data[MediaFrameHeaderSize:],
	}, nil
}

// EncodeMediaFrame serializes a binary media frame
func EncodeMediaFrame(f MediaFrame) []byte {
	buf := make([]byte, MediaFrameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint64(buf[0:8], uint64(f.Timestamp))
	buf[8] = f.CodecTag
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(f.Payload)))
	copy(buf[MediaFrameHeaderSize:], f.Payload)
	return buf
}
