package dicom

import (
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmio"
)

// preambleLen is the DICOM Part-10 preamble length; the magic "DICM"
// immediately follows it at offset 128.
const preambleLen = 128

// dataStart is where element iteration begins: just past the preamble
// and the 4-byte "DICM" magic. Per spec.md §4.1 this holds regardless of
// which detection path (magic vs. legacy group-number) recognized the
// buffer as DICOM.
const dataStart = preambleLen + 4

// looksLikeDICOM applies spec.md §4.1's recognition rule: the bytes at
// offset 128..131 read "DICM", or the first group-number halfword equals
// 0x0002 or 0x0008 (legacy datasets with no preamble).
func looksLikeDICOM(buf []byte) bool {
	if len(buf) >= preambleLen+4 && string(buf[preambleLen:preambleLen+4]) == "DICM" {
		return true
	}
	if len(buf) >= 2 {
		group := uint16(buf[0]) | uint16(buf[1])<<8
		if group == 0x0002 || group == 0x0008 {
			return true
		}
	}
	return false
}

// Parse builds a Dataset over buf. Parsing stops (without error) on
// encountering pixel data or an undefined-length element outside pixel
// data; it fails with dcmerr.NotDICOM or dcmerr.ParseTruncated.
func Parse(buf []byte) (*Dataset, error) {
	if len(buf) < dataStart {
		return nil, dcmerr.New(dcmerr.NotDICOM, "buffer shorter than 132 bytes")
	}
	if !looksLikeDICOM(buf) {
		return nil, dcmerr.New(dcmerr.NotDICOM, "missing DICM magic and no legacy group match")
	}

	ds := &Dataset{elements: make(map[string]Element), source: buf}
	r := dcmio.NewReader(buf)
	r.Seek(dataStart)

	for r.Remaining() >= 8 {
		group, err := r.U16()
		if err != nil {
			break
		}
		element, err := r.U16()
		if err != nil {
			return nil, dcmerr.New(dcmerr.ParseTruncated, "truncated tag")
		}
		vrBytes, err := r.Bytes(2)
		if err != nil {
			return nil, dcmerr.New(dcmerr.ParseTruncated, "truncated VR")
		}
		vr := string(vrBytes)

		var length uint32
		if isLongFormVR(vr) {
			if err := r.Skip(2); err != nil { // reserved
				return nil, dcmerr.New(dcmerr.ParseTruncated, "truncated reserved field")
			}
			length, err = r.U32()
		} else {
			var l16 uint16
			l16, err = r.U16()
			length = uint32(l16)
		}
		if err != nil {
			return nil, dcmerr.New(dcmerr.ParseTruncated, "truncated length")
		}

		tag := Tag{Group: group, Element: element}
		valueOffset := r.Pos()

		if tag == TagPixelData {
			ds.pixelDataOffset = valueOffset
			ds.hasPixelData = true
			el := Element{Tag: tag, VR: vr, Length: length, Offset: valueOffset}
			ds.elements[tag.String()] = el
			break
		}

		if length == undefinedLength {
			// Sequence content is not required by the core; stop here
			// per spec.md §4.1 rather than descending into it.
			break
		}

		if valueOffset+int(length) > len(buf) {
			return nil, dcmerr.New(dcmerr.ParseTruncated, "element value exceeds buffer length")
		}

		el := Element{Tag: tag, VR: vr, Length: length, Offset: valueOffset}
		ds.elements[tag.String()] = el

		if tag == TagTransferSyntaxUID {
			ds.transferSyntax = trimASCII(buf[valueOffset : valueOffset+int(length)])
		}

		if err := r.Skip(int(length)); err != nil {
			return nil, dcmerr.New(dcmerr.ParseTruncated, "truncated element value")
		}
	}

	return ds, nil
}

// encapsulatedPrefix and rleUID define the transfer-syntax UIDs that
// classify as encapsulated per spec.md §4.1/§6: anything beginning with
// 1.2.840.10008.1.2.4 (JPEG/JPEG2000 family) or equal to
// 1.2.840.10008.1.2.5 (RLE).
const (
	encapsulatedPrefix = "1.2.840.10008.1.2.4"
	rleUID             = "1.2.840.10008.1.2.5"
)

// IsEncapsulated classifies a transfer syntax UID per spec.md §4.1.
func IsEncapsulated(transferSyntaxUID string) bool {
	if transferSyntaxUID == rleUID {
		return true
	}
	return len(transferSyntaxUID) >= len(encapsulatedPrefix) && transferSyntaxUID[:len(encapsulatedPrefix)] == encapsulatedPrefix
}
