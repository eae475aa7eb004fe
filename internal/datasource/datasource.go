// Package datasource defines the collaborator contract of spec.md §4.8
// that the local and WADO-RS sources both implement.
package datasource

import (
	"github.com/dcmcore/engine/internal/dcmctx"
	"github.com/dcmcore/engine/internal/dicom"
)

// Metadata is what loadMetadata returns: everything a viewport needs to
// start playback without touching pixel data.
type Metadata struct {
	ImageInfo      dicom.ImageInfo
	FrameCount     int
	IsEncapsulated bool
	TransferSyntax string
	Calibration    dicom.CalibrationData
	HasCalibration bool
}

// Options carries a cancellation token and a cache-bypass flag through
// every load, per spec.md §4.8.
type Options struct {
	Token       dcmctx.Token
	BypassCache bool
}

// DataSource is the common contract behind the local and WADO-RS
// collaborators.
type DataSource interface {
	LoadMetadata(instanceID string, opts Options) (Metadata, error)
	// LoadFrame fetches a single 1-based frame number.
	LoadFrame(instanceID string, frameNumber int, opts Options) ([]byte, error)
	// LoadFrames fetches several 1-based frame numbers in one call.
	LoadFrames(instanceID string, frameNumbers []int, opts Options) ([][]byte, error)
	// LoadAllFrames fetches metadata and every frame together.
	LoadAllFrames(instanceID string, opts Options) (Metadata, [][]byte, error)
}
