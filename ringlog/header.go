package ringlog

import (
	"encoding/binary"
	"fmt"

	"nandring/crcseal"
)

// HeaderSize is the packed, little-endian on-media size of PageHeader
// in bytes: 2+8+8+4+4+2+2+4.
const HeaderSize = 34

// badMarkErased is the spare-area bad-mark value stamped into every page
// header the ring writes; 0x0000 in either of the first two spare bytes
// of a block's page 0 is the bad-block convention instead.
const badMarkErased uint16 = 0xFFFF

// wastedID and firstID are the two reserved PageHeader.ID values: 0
// means the page was never sealed (erased or CRC-broken), 1 is the
// first legitimate id a freshly-erased ring assigns.
const (
	wastedID uint64 = 0
	firstID  uint64 = 1
)

// PageHeader is the spare-area structure sealing every written page.
// Field order and widths match the wire format exactly; see
// Encode/Decode.
type PageHeader struct {
	BadMark       uint16
	ID            uint64
	TimeBootUs    uint64
	UTCCorrection uint32
	PageECC       uint32
	BackLink      uint16
	Written       uint16
	SpareCRC      uint32
}

// Encode packs h into a HeaderSize-byte little-endian buffer, computing
// SpareCRC over everything preceding it. The CRC field in h is ignored on
// input and overwritten on output; sealing is always done here, never
// by the caller.
func (h PageHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.BadMark)
	binary.LittleEndian.PutUint64(buf[2:10], h.ID)
	binary.LittleEndian.PutUint64(buf[10:18], h.TimeBootUs)
	binary.LittleEndian.PutUint32(buf[18:22], h.UTCCorrection)
	binary.LittleEndian.PutUint32(buf[22:26], h.PageECC)
	binary.LittleEndian.PutUint16(buf[26:28], h.BackLink)
	binary.LittleEndian.PutUint16(buf[28:30], h.Written)
	crc := crcseal.Checksum(buf[:30])
	binary.LittleEndian.PutUint32(buf[30:34], crc)
	return buf
}

// DecodeHeader unpacks a HeaderSize-byte buffer into a PageHeader. It
// does not itself validate the CRC; callers that care about validity
// call Valid on the result (or use decodeValidHeader, which does both).
func DecodeHeader(buf []byte) (PageHeader, error) {
	if len(buf) < HeaderSize {
		return PageHeader{}, fmt.Errorf("ringlog: header buffer too short: %d < %d", len(buf), HeaderSize)
	}
	var h PageHeader
	h.BadMark = binary.LittleEndian.Uint16(buf[0:2])
	h.ID = binary.LittleEndian.Uint64(buf[2:10])
	h.TimeBootUs = binary.LittleEndian.Uint64(buf[10:18])
	h.UTCCorrection = binary.LittleEndian.Uint32(buf[18:22])
	h.PageECC = binary.LittleEndian.Uint32(buf[22:26])
	h.BackLink = binary.LittleEndian.Uint16(buf[26:28])
	h.Written = binary.LittleEndian.Uint16(buf[28:30])
	h.SpareCRC = binary.LittleEndian.Uint32(buf[30:34])
	return h, nil
}

// Valid reports whether h's stored SpareCRC matches the CRC recomputed
// over its own encoding. A page with an invalid header is treated as
// wasted/unreadable.
func (h PageHeader) Valid() bool {
	buf := h.Encode()
	want := binary.LittleEndian.Uint32(buf[30:34])
	return want == h.SpareCRC
}

// decodeValidHeader decodes the header bytes in buf and additionally
// reports whether they pass their own CRC check. It never returns an
// error for a CRC mismatch: a broken CRC is business as usual (the page
// simply wasn't sealed); only a buffer shorter than HeaderSize is
// surfaced as an error.
func decodeValidHeader(buf []byte) (hdr PageHeader, valid bool, err error) {
	hdr, err = DecodeHeader(buf)
	if err != nil {
		return PageHeader{}, false, err
	}
	return hdr, hdr.Valid(), nil
}
