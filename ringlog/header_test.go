package ringlog

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := PageHeader{
		BadMark:       badMarkErased,
		ID:            42,
		TimeBootUs:    123456789,
		UTCCorrection: 7,
		PageECC:       0xDEADBEEF,
		BackLink:      17,
		Written:       2048,
	}
	encoded := h.Encode()
	if len(encoded) != HeaderSize {
		t.Fatalf("Encode length = %d, want %d", len(encoded), HeaderSize)
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded.ID != h.ID || decoded.TimeBootUs != h.TimeBootUs ||
		decoded.UTCCorrection != h.UTCCorrection || decoded.PageECC != h.PageECC ||
		decoded.BackLink != h.BackLink || decoded.Written != h.Written {
		t.Fatalf("decoded header %+v does not match original %+v", decoded, h)
	}
	if !decoded.Valid() {
		t.Fatalf("decoded header should pass its own CRC check")
	}
}

func TestHeaderValidDetectsCorruption(t *testing.T) {
	h := PageHeader{ID: 1, BackLink: 3}
	encoded := h.Encode()
	encoded[2] ^= 0xFF // corrupt a byte inside the ID field

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded.Valid() {
		t.Fatalf("corrupted header should not pass its own CRC check")
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatalf("expected error decoding a too-short buffer")
	}
}

func TestDecodeValidHeaderOnAllErasedSpare(t *testing.T) {
	buf := make([]byte, HeaderSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	hdr, valid, err := decodeValidHeader(buf)
	if err != nil {
		t.Fatalf("decodeValidHeader: %v", err)
	}
	if valid {
		t.Fatalf("an all-0xFF erased spare area must not pass as a valid header")
	}
	_ = hdr
}
