package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// pdfBytes returns a minimal payload that sniffs as application/pdf,
// padded to exactly n bytes.
func pdfBytes(n int) []byte {
	header := []byte("%PDF-1.4\n")
	if n < len(header) {
		return header[:n]
	}
	return append(header, bytes.Repeat([]byte{' '}, n-len(header))...)
}

func TestValidate_AcceptsAllowedType(t *testing.T) {
	v := NewValidator(0, nil)

	key, err := v.Validate(pdfBytes(256), "application/pdf", "beyanname.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key, "chat_files/") {
		t.Errorf("expected key under chat_files/, got %q", key)
	}
	if !strings.HasSuffix(key, "_beyanname.pdf") {
		t.Errorf("expected key ending in sanitized name, got %q", key)
	}
}

func TestValidate_RejectsDisallowedType(t *testing.T) {
	v := NewValidator(0, nil)

	_, err := v.Validate([]byte("MZ\x90\x00"), "application/x-msdownload", "malware.exe")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestValidate_RejectsMismatchedContent(t *testing.T) {
	v := NewValidator(0, nil)

	// Declared PDF, but the bytes are an executable header.
	_, err := v.Validate([]byte("MZ\x90\x00\x03\x00"), "application/pdf", "fake.pdf")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestValidate_SizeBoundary(t *testing.T) {
	const max = 64
	v := NewValidator(max, nil)

	// Exactly at the ceiling: accepted.
	if _, err := v.Validate(pdfBytes(max), "application/pdf", "edge.pdf"); err != nil {
		t.Fatalf("payload at the ceiling should pass, got %v", err)
	}

	// One byte over: rejected.
	_, err := v.Validate(pdfBytes(max+1), "application/pdf", "over.pdf")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestValidate_KeysAreUnique(t *testing.T) {
	v := NewValidator(0, nil)

	k1, err := v.Validate(pdfBytes(32), "application/pdf", "a.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := v.Validate(pdfBytes(32), "application/pdf", "a.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k2 {
		t.Errorf("expected distinct keys for identical inputs, both were %q", k1)
	}
}

func TestDecodeDataURI(t *testing.T) {
	payload := pdfBytes(100)
	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(payload)

	contentType, data, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentType != "application/pdf" {
		t.Errorf("expected content type application/pdf, got %q", contentType)
	}
	if !bytes.Equal(data, payload) {
		t.Error("decoded bytes do not match the original payload")
	}
	// The descriptor size reported downstream is the decoded length.
	if len(data) != 100 {
		t.Errorf("expected 100 decoded bytes, got %d", len(data))
	}
}

func TestDecodeDataURI_WithoutScheme(t *testing.T) {
	uri := "image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	contentType, _, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("expected content type image/png, got %q", contentType)
	}
}

func TestDecodeDataURI_Malformed(t *testing.T) {
	cases := []string{
		"",
		"application/pdf",           // no base64 marker
		";base64,AAAA",              // no content type
		"data:application/pdf;base64,!!!not-base64!!!",
	}
	for _, uri := range cases {
		if _, _, err := DecodeDataURI(uri); err == nil {
			t.Errorf("expected error for %q", uri)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fatura.pdf", "fatura.pdf"},
		{"yıllık rapor.pdf", "y_ll_k_rapor.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\gelir.png`, "gelir.png"},
		{"...", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
