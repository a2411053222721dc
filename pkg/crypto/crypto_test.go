package crypto

import (
	"bytes"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if len(salt) != SaltSize {
		t.Fatalf("salt length = %d, want %d", len(salt), SaltSize)
	}

	hash := HashPassword("secret123", salt)
	if len(hash) != HashSize {
		t.Fatalf("hash length = %d, want %d", len(hash), HashSize)
	}
	if !VerifyPassword("secret123", salt, hash) {
		t.Errorf("VerifyPassword: correct password rejected")
	}
	if VerifyPassword("secret124", salt, hash) {
		t.Errorf("VerifyPassword: wrong password accepted")
	}
	if VerifyPassword("secret123", nil, hash) {
		t.Errorf("VerifyPassword: empty salt accepted")
	}
}

func TestHashPasswordSaltMatters(t *testing.T) {
	a := HashPassword("pw", []byte("salt-aaaaaaaaaaa"))
	b := HashPassword("pw", []byte("salt-bbbbbbbbbbb"))
	if bytes.Equal(a, b) {
		t.Errorf("different salts produced identical hashes")
	}
}

func TestGenerateVoiceToken(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 64; i++ {
		tok, err := GenerateVoiceToken()
		if err != nil {
			t.Fatalf("GenerateVoiceToken: %v", err)
		}
		if tok == 0 {
			t.Fatalf("GenerateVoiceToken returned zero")
		}
		if seen[tok] {
			t.Fatalf("duplicate token %x", tok)
		}
		seen[tok] = true
	}
	if got := FormatVoiceToken(0xab); got != "00000000000000ab" {
		t.Errorf("FormatVoiceToken = %q", got)
	}
}

func TestParseVoiceToken(t *testing.T) {
	tcases := map[string]struct {
		in      string
		want    uint64
		wantErr bool
	}{
		"round trip": {in: FormatVoiceToken(0xdeadbeef01), want: 0xdeadbeef01},
		"max":        {in: "ffffffffffffffff", want: ^uint64(0)},
		"short":      {in: "abc", wantErr: true},
		"not hex":    {in: "zzzzzzzzzzzzzzzz", wantErr: true},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVoiceToken(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseVoiceToken(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseVoiceToken(%q) = %x, want %x", tc.in, got, tc.want)
			}
		})
	}
}
