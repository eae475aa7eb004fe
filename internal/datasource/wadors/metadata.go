package wadors

import (
	"encoding/json"
	"strconv"

	"github.com/dcmcore/engine/internal/datasource"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dicom"
)

// jsonElement is one tag entry of the DICOM JSON model (PS3.18 Annex F):
// {"vr": "US", "Value": [4]}.
type jsonElement struct {
	VR    string          `json:"vr"`
	Value json.RawMessage `json:"Value"`
}

const (
	tagTransferSyntaxUID = "00020010"
	tagRows              = "00280010"
	tagColumns           = "00280011"
	tagBitsAllocated     = "00280100"
	tagBitsStored        = "00280101"
	tagHighBit           = "00280102"
	tagPixelRepr         = "00280103"
	tagPhotometric       = "00280004"
	tagSamplesPerPixel   = "00280002"
	tagNumberOfFrames    = "00280008"
	tagPixelSpacing      = "00280030"
	tagModality          = "00080060"
)

// modalityUltrasound is the Modality (0008,0060) code identifying an
// ultrasound instance, the only family that calibrates via an Ultrasound
// Regions sequence rather than PixelSpacing.
const modalityUltrasound = "US"

// parseMetadataJSON decodes a DICOMweb "application/dicom+json" body into
// a datasource.Metadata, plus the instance's Modality code. It reads the
// flat attributes measurement and playback need directly; it
// deliberately does not walk sequence items (e.g. the Ultrasound Regions
// sequence), matching internal/dicom's own Part-10 parser scope — full
// calibration recovery for ultrasound instances goes through the Part-10
// fallback fetch in LoadMetadata instead, gated on the returned modality
// so non-ultrasound instances missing PixelSpacing never trigger it.
func parseMetadataJSON(body []byte) (datasource.Metadata, string, error) {
	var docs []map[string]jsonElement
	if err := json.Unmarshal(body, &docs); err != nil {
		return datasource.Metadata{}, "", dcmerr.Wrap(dcmerr.NotDICOM, err, "decoding DICOM JSON metadata")
	}
	if len(docs) == 0 {
		return datasource.Metadata{}, "", dcmerr.New(dcmerr.NotDICOM, "empty DICOM JSON metadata array")
	}
	doc := docs[0]

	rows, ok := numValue(doc[tagRows])
	if !ok {
		return datasource.Metadata{}, "", dcmerr.New(dcmerr.ParseTruncated, "metadata missing Rows")
	}
	cols, ok := numValue(doc[tagColumns])
	if !ok {
		return datasource.Metadata{}, "", dcmerr.New(dcmerr.ParseTruncated, "metadata missing Columns")
	}
	bitsAllocated, ok := numValue(doc[tagBitsAllocated])
	if !ok {
		return datasource.Metadata{}, "", dcmerr.New(dcmerr.ParseTruncated, "metadata missing BitsAllocated")
	}
	bitsStored, ok := numValue(doc[tagBitsStored])
	if !ok {
		bitsStored = bitsAllocated
	}
	highBit, ok := numValue(doc[tagHighBit])
	if !ok {
		highBit = bitsStored - 1
	}
	pixelRep, _ := numValue(doc[tagPixelRepr])
	samplesPerPixel, ok := numValue(doc[tagSamplesPerPixel])
	if !ok {
		samplesPerPixel = 1
	}
	photometric := strValue(doc[tagPhotometric])
	transferSyntax := strValue(doc[tagTransferSyntaxUID])

	info := dicom.ImageInfo{
		Rows:                      uint16(rows),
		Columns:                   uint16(cols),
		BitsAllocated:             uint16(bitsAllocated),
		BitsStored:                uint16(bitsStored),
		HighBit:                   uint16(highBit),
		PixelRepresentation:       uint16(pixelRep),
		PhotometricInterpretation: photometric,
		SamplesPerPixel:           uint16(samplesPerPixel),
	}

	if rowMM, colMM, ok := pixelSpacing(doc[tagPixelSpacing]); ok {
		info.PixelSpacing = &dicom.PixelSpacing{Row: rowMM, Column: colMM}
	}

	frameCount := 1
	if n, ok := numValue(doc[tagNumberOfFrames]); ok && n > 1 {
		frameCount = n
	}

	meta := datasource.Metadata{
		ImageInfo:      info,
		FrameCount:     frameCount,
		IsEncapsulated: dicom.IsEncapsulated(transferSyntax),
		TransferSyntax: transferSyntax,
	}
	if calib, ok := dicom.DeriveCalibration(info); ok {
		meta.Calibration = calib
		meta.HasCalibration = true
	}
	return meta, strValue(doc[tagModality]), nil
}

func numValue(el jsonElement) (int, bool) {
	if len(el.Value) == 0 {
		return 0, false
	}
	var vals []json.Number
	if err := json.Unmarshal(el.Value, &vals); err != nil || len(vals) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(vals[0]))
	if err != nil {
		f, ferr := vals[0].Float64()
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

func strValue(el jsonElement) string {
	if len(el.Value) == 0 {
		return ""
	}
	var vals []string
	if err := json.Unmarshal(el.Value, &vals); err != nil || len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func pixelSpacing(el jsonElement) (row, col float64, ok bool) {
	if len(el.Value) == 0 {
		return 0, 0, false
	}
	var vals []json.Number
	if err := json.Unmarshal(el.Value, &vals); err != nil || len(vals) < 2 {
		return 0, 0, false
	}
	rowF, err1 := vals[0].Float64()
	colF, err2 := vals[1].Float64()
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return rowF, colF, true
}
