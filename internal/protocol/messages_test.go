// ABOUTME: Tests for JSON control frame encoding
// ABOUTME: Pins the wire field names the server expects
package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHelloWireFormat(t *testing.T) {
	msg := Message{
		Type: TypeHello,
		Payload: Hello{
			ClientID:   "android-player-1",
			ClientName: "Android Player",
			Roles:      []string{"player"},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	s := string(data)
	for _, want := range []string{`"type":"hello"`, `"client_id"`, `"client_name"`, `"roles":["player"]`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
}

func TestTimeProbeWireFormat(t *testing.T) {
	data, _ := json.Marshal(Message{Type: TypeTimeProbe, Payload: TimeProbe{T0Micros: 12345}})
	if !strings.Contains(string(data), `"t0_us":12345`) {
		t.Errorf("expected t0_us field, got %s", data)
	}
}

func TestTimeProbeResponseParse(t *testing.T) {
	raw := `{"t0_us":100,"s1_us":5000,"s2_us":5050}`

	var resp TimeProbeResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.T0Micros != 100 || resp.S1Micros != 5000 || resp.S2Micros != 5050 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestMetadataOptionalFields(t *testing.T) {
	raw := `{
		"title": "Song",
		"progress": {"position_ms": 30000, "duration_ms": 180000, "speed_milli": 1000},
		"server_ts_us": 5000000000
	}`

	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if meta.Title == nil || *meta.Title != "Song" {
		t.Error("expected title parsed")
	}
	if meta.Artist != nil {
		t.Error("expected absent artist to stay nil")
	}
	if meta.Progress == nil || meta.Progress.SpeedMilli != 1000 {
		t.Errorf("expected progress parsed, got %+v", meta.Progress)
	}
	if meta.ServerTS != 5_000_000_000 {
		t.Errorf("expected server timestamp, got %d", meta.ServerTS)
	}
}

func TestOutboundCommandWireFormat(t *testing.T) {
	data, _ := json.Marshal(Message{Type: TypeCmd, Payload: Cmd{Action: "play"}})
	if !strings.Contains(string(data), `"action":"play"`) {
		t.Errorf("expected action field, got %s", data)
	}

	data, _ = json.Marshal(Message{Type: TypeGroupVolume, Payload: GroupVolume{Volume: 70}})
	if !strings.Contains(string(data), `"volume_0_100":70`) {
		t.Errorf("expected volume_0_100 field, got %s", data)
	}

	data, _ = json.Marshal(Message{Type: TypeGroupMute, Payload: GroupMute{Muted: true}})
	if !strings.Contains(string(data), `"muted":true`) {
		t.Errorf("expected muted field, got %s", data)
	}
}

func TestStreamParse(t *testing.T) {
	raw := `{
		"codec": "flac",
		"sample_rate": 44100,
		"channels": 2,
		"bit_depth": 24,
		"playback_state": "playing",
		"group_name": "Kitchen",
		"codec_header": "ZmxhQw=="
	}`

	var stream Stream
	if err := json.Unmarshal([]byte(raw), &stream); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if stream.Codec != "flac" || stream.BitDepth != 24 || stream.GroupName != "Kitchen" {
		t.Errorf("unexpected stream: %+v", stream)
	}
	if stream.CodecHeader == "" {
		t.Error("expected codec header preserved")
	}
}
