package handlers

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestDecodeDataURL(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"with data url prefix", "data:image/jpeg;base64," + encoded, raw, false},
		{"bare base64", encoded, raw, false},
		{"invalid base64", "data:image/jpeg;base64,!!!", nil, true},
		{"empty payload", "data:image/jpeg;base64,", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeDataURL(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeDataURL: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("decoded = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStrPtr(t *testing.T) {
	if strPtr("") != nil {
		t.Error("empty string must map to nil")
	}
	if p := strPtr("x"); p == nil || *p != "x" {
		t.Error("non-empty string must round-trip")
	}
}
