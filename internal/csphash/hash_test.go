package csphash

import "testing"

func TestToken_EmptyString(t *testing.T) {
	// sha256 of zero bytes is a fixed, well-known value
	const want = "'sha256-47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU='"
	if got := Token(""); got != want {
		t.Fatalf("Token(\"\") = %q, want %q", got, want)
	}
}

func TestToken_Format(t *testing.T) {
	got := Token("alert(1)")
	if len(got) < 2 || got[0] != '\'' || got[len(got)-1] != '\'' {
		t.Fatalf("Token not quote-wrapped: %q", got)
	}
	const prefix = "'sha256-"
	if got[:len(prefix)] != prefix {
		t.Fatalf("Token prefix = %q, want %q", got[:len(prefix)], prefix)
	}
}

func TestToken_Stable(t *testing.T) {
	a := Token("console.log('hi')\n")
	b := Token("console.log('hi')\n")
	if a != b {
		t.Fatalf("Token not stable: %q != %q", a, b)
	}
}

func TestToken_WhitespaceSignificant(t *testing.T) {
	if Token("alert(1)") == Token("alert(1)\n") {
		t.Fatal("tokens should differ when whitespace differs")
	}
	if Token(" alert(1)") == Token("alert(1)") {
		t.Fatal("leading whitespace must change the token")
	}
}
