package ferritecore

import "github.com/binp-dev/ferrite-core/internal/constants"

// Re-exported domain constants (spec §3, §6) so an embedding application
// doesn't need to import internal/constants directly.
const (
	NAdc                  = constants.NAdc
	DefaultMaxMessageSize = constants.DefaultMaxMessageSize
	DefaultAdcReqHz       = constants.DefaultAdcReqHz
	MinScanFreqHz         = constants.MinScanFreqHz
	MaxScanFreqHz         = constants.MaxScanFreqHz
	DoutBitMask           = constants.DoutBitMask
	SPIFrameSize          = constants.SPIFrameSize
)
