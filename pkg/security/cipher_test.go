package security

import (
	"bytes"
	"testing"
)

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{
			name:    "valid 32-byte key",
			key:     make([]byte, 32),
			wantErr: false,
		},
		{
			name:    "invalid short key",
			key:     make([]byte, 16),
			wantErr: true,
		},
		{
			name:    "invalid long key",
			key:     make([]byte, 64),
			wantErr: true,
		},
		{
			name:    "empty key",
			key:     []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCipher() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && c == nil {
				t.Error("NewCipher() returned nil without error")
			}
		})
	}
}

func TestNewCipherFromSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{
			name:    "valid secret",
			secret:  "a-process-secret-of-reasonable-size",
			wantErr: false,
		},
		{
			name:    "empty secret",
			secret:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipherFromSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCipherFromSecret() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && c == nil {
				t.Error("NewCipherFromSecret() returned nil without error")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipherFromSecret("a-process-secret-of-reasonable-size")
	if err != nil {
		t.Fatalf("NewCipherFromSecret() error = %v", err)
	}

	plaintext := []byte(`{"id":"svc-a","name":"Service A","api_key":"deadbeef"}`)
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext, []byte("svc-a")) {
		t.Error("ciphertext leaks plaintext content")
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	c, _ := NewCipherFromSecret("a-process-secret-of-reasonable-size")

	plaintext := []byte("same input")
	first, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two encryptions of the same input produced identical ciphertexts")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, _ := NewCipherFromSecret("a-process-secret-of-reasonable-size")

	ciphertext, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := c.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() accepted tampered ciphertext")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	a, _ := NewCipherFromSecret("a-process-secret-of-reasonable-size")
	b, _ := NewCipherFromSecret("another-secret-entirely-different!")

	ciphertext, err := a.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() succeeded with the wrong key")
	}
}

func TestDecryptRejectsShortInput(t *testing.T) {
	c, _ := NewCipherFromSecret("a-process-secret-of-reasonable-size")

	for _, input := range [][]byte{nil, {}, {0x01, 0x02, 0x03}} {
		if _, err := c.Decrypt(input); err == nil {
			t.Errorf("Decrypt(%v) accepted invalid input", input)
		}
	}
}
