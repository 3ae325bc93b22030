// ABOUTME: Tests for the binary media frame codec
// ABOUTME: Covers round trip, truncation, and length mismatch
package protocol

import (
	"bytes"
	"testing"
)

func TestMediaFrameRoundTrip(t *testing.T) {
	in := MediaFrame{
		Timestamp: 5_000_123_456,
		CodecTag:  CodecTagOpus,
		Payload:   []byte{0x01, 0x02, 0x03, 0x04},
	}

	out, err := DecodeMediaFrame(EncodeMediaFrame(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if out.Timestamp != in.Timestamp {
		t.Errorf("expected timestamp %d, got %d", in.Timestamp, out.Timestamp)
	}
	if out.CodecTag != in.CodecTag {
		t.Errorf("expected codec tag %d, got %d", in.CodecTag, out.CodecTag)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("payload mismatch")
	}
}

func TestMediaFrameTooShort(t *testing.T) {
	if _, err := DecodeMediaFrame(make([]byte, MediaFrameHeaderSize-1)); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestMediaFrameLengthMismatch(t *testing.T) {
	data := EncodeMediaFrame(MediaFrame{Timestamp: 1, CodecTag: CodecTagPCM, Payload: []byte{1, 2, 3}})
	// Drop the last payload byte so the header length no longer matches
	if _, err := DecodeMediaFrame(data[:len(data)-1]); err == nil {
		t.Error("expected error for payload length mismatch")
	}
}

func TestCodecTagMapping(t *testing.T) {
	for _, codec := range []string{"pcm", "opus", "flac", "mp3"} {
		tag, ok := CodecTag(codec)
		if !ok {
			t.Fatalf("expected tag for codec %s", codec)
		}
		name, ok := CodecName(tag)
		if !ok || name != codec {
			t.Errorf("expected codec %s for tag %d, got %s", codec, tag, name)
		}
	}

	if _, ok := CodecTag("vorbis"); ok {
		t.Error("expected no tag for unknown codec")
	}
	if _, ok := CodecName(200); ok {
		t.Error("expected no name for unknown tag")
	}
}
