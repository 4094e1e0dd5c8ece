package store

import (
	"bytes"
	"strconv"
	"testing"
	"time"
)

func TestEncodeDecodeResult(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := Result{SessionID: "s1", Tool: "split", Pages: 3, Location: "s3://b/k", Created: created, Data: []byte("%PDF\x00\xff")}

	m := encodeResult(r)
	raw := make(map[string]string, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case []byte:
			raw[k] = string(v)
		case string:
			raw[k] = v
		case int:
			raw[k] = strconv.Itoa(v)
		}
	}

	got := decodeResult(raw)
	if got.SessionID != "s1" || got.Tool != "split" || got.Pages != 3 || got.Location != "s3://b/k" {
		t.Errorf("decodeResult = %+v", got)
	}
	if !got.Created.Equal(created) {
		t.Errorf("Created = %v, want %v", got.Created, created)
	}
	if !bytes.Equal(got.Data, r.Data) {
		t.Errorf("Data = %q, want %q", got.Data, r.Data)
	}
}

func TestDecodeResultTolerant(t *testing.T) {
	got := decodeResult(map[string]string{"pages": "x", "created": "yesterday"})
	if got.Pages != 0 || !got.Created.IsZero() {
		t.Errorf("decodeResult = %+v, want zero display fields", got)
	}
}

func TestKey(t *testing.T) {
	s := &ResultStore{keyNS: "result"}
	if got := s.key("abc"); got != "result:abc" {
		t.Errorf("key = %q", got)
	}
}
