package consent

import (
	"math/rand"
	"strings"
	"testing"
)

func TestDecodeAppPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "C:#Program Files#app.exe", want: `C:\Program Files\app.exe`},
		{name: "C:#Windows#System32#svchost.exe", want: `C:\Windows\System32\svchost.exe`},
		{name: "plain.exe", want: "plain.exe"},
		{name: "", want: ""},
	}

	for _, tt := range tests {
		if got := DecodeAppPath(tt.name); got != tt.want {
			t.Errorf("DecodeAppPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAppPathRoundTrip(t *testing.T) {
	fixed := []string{
		`C:\Program Files\app.exe`,
		`\\server\share\tool.exe`,
		`D:\a\b\c\d\e.exe`,
		`C:\Users\alice\AppData\Local\Discord\app-1.0.9013\Discord.exe`,
	}
	for _, p := range fixed {
		if got := DecodeAppPath(EncodeAppPath(p)); got != p {
			t.Errorf("round trip of %q = %q", p, got)
		}
		if strings.Contains(EncodeAppPath(p), `\`) {
			t.Errorf("EncodeAppPath(%q) still contains a separator", p)
		}
	}

	// '#' is the placeholder, so generated paths avoid it.
	const alphabet = `abcXYZ019 ._-()\\`
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		var sb strings.Builder
		sb.WriteString(`C:\`)
		n := rng.Intn(40)
		for j := 0; j < n; j++ {
			sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		p := sb.String()
		if got := DecodeAppPath(EncodeAppPath(p)); got != p {
			t.Fatalf("round trip of %q = %q", p, got)
		}
	}
}
