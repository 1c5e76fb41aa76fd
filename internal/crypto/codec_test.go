package crypto

import (
	"bytes"
	"testing"
)

func TestBytesToString_RoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"ascii", []byte("abc123")},
		{"high bytes", []byte{0x80, 0xff, 0xc3, 0xa9}},
		{"every byte", all},
		{"nul", []byte{0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BytesToString(tt.data)
			if n := len([]rune(s)); n != len(tt.data) {
				t.Errorf("rune count = %d, want %d", n, len(tt.data))
			}
			if got := StringToBytes(s); !bytes.Equal(got, tt.data) {
				t.Errorf("StringToBytes(BytesToString(b)) = %v, want %v", got, tt.data)
			}
			if got := BytesToString(StringToBytes(s)); got != s {
				t.Errorf("BytesToString(StringToBytes(s)) = %q, want %q", got, s)
			}
		})
	}
}

func TestCodec_EmptyAndInvalid(t *testing.T) {
	if got := BytesToString(nil); got != "" {
		t.Errorf("BytesToString(nil) = %q, want empty", got)
	}
	if got := BytesToString([]byte{}); got != "" {
		t.Errorf("BytesToString([]) = %q, want empty", got)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"above latin-1", "caf€"},
		{"invalid utf-8", string([]byte{0xff, 0xfe})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringToBytes(tt.input); got != nil {
				t.Errorf("StringToBytes(%q) = %v, want nil", tt.input, got)
			}
		})
	}
}

func TestTextEncode_ExpandsHighBytes(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"ascii unchanged", []byte("salt"), []byte("salt")},
		{"0x80", []byte{0x80}, []byte{0xc2, 0x80}},
		{"0xe9", []byte{0xe9}, []byte{0xc3, 0xa9}},
		{"0xff", []byte{0x41, 0xff}, []byte{0x41, 0xc3, 0xbf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := binaryUTF8(tt.in); !bytes.Equal(got, tt.want) {
				t.Errorf("binaryUTF8(%x) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}
