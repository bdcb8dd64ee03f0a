// Updated devices/w5100_constants.go
package devices

// Common (non-socket) register offsets inside the 32 KiB memory image.
const (
	regMode   = 0x0000
	regGAR    = 0x0001 // gateway, 4 bytes
	regSUBR   = 0x0005 // subnet mask, 4 bytes
	regSHAR   = 0x0009 // source MAC, 6 bytes
	regSIPR   = 0x000F // source IP, 4 bytes
	regRTR    = 0x0017 // retry time, 2 bytes
	regRCR    = 0x0019 // retry count
	regRMSR   = 0x001A // RX memory size
	regTMSR   = 0x001B // TX memory size
	regPPTLR  = 0x0028 // sentinel identifying the emulated card
)

// Mode register bits.
const (
	modeReset      = 0x80
	modeAutoInc    = 0x02
)

// Socket register page layout: socket n base is socketBase + n*socketStride.
const (
	socketBase   = 0x0400
	socketStride = 0x0100

	sMR     = 0x00
	sCR     = 0x01
	sIR     = 0x02
	sSR     = 0x03
	sPORT0  = 0x04
	sPORT1  = 0x05
	sDHAR0  = 0x06 // .. 0x0B, 6 bytes
	sDIPR0  = 0x0C // .. 0x0F, 4 bytes
	sDPORT0 = 0x10
	sDPORT1 = 0x11
	sTTL    = 0x16
	sTXFSR0 = 0x20
	sTXFSR1 = 0x21
	sTXRD0  = 0x22
	sTXRD1  = 0x23
	sTXWR0  = 0x24
	sTXWR1  = 0x25
	sRXRSR0 = 0x26
	sRXRSR1 = 0x27
	sRXRD0  = 0x28
	sRXRD1  = 0x29
)

// Socket mode register values (Sn_MR low nibble).
const (
	mrCLOSED = 0x00
	mrTCP    = 0x01
	mrUDP    = 0x02
	mrIPRAW  = 0x03
	mrMACRAW = 0x04
)

// Socket command register values.
const (
	crOPEN    = 0x01
	crLISTEN  = 0x02
	crCONNECT = 0x04
	crDISCON  = 0x08
	crCLOSE   = 0x10
	crSEND    = 0x20
	crRECV    = 0x40
)

// Socket status register values.
const (
	srCLOSED      = 0x00
	srINIT        = 0x13
	srLISTEN      = 0x14
	srSYNSENT     = 0x15
	srSYNRECV     = 0x16
	srESTABLISHED = 0x17
	srFINWAIT     = 0x18
	srCLOSING     = 0x1A
	srTIMEWAIT    = 0x1B
	srCLOSEWAIT   = 0x1C
	srLASTACK     = 0x1D
	srUDP         = 0x22
	srIPRAW       = 0x32
	srMACRAW      = 0x42
)

// Memory layout.
const (
	memSize      = 32 * 1024
	txBankBase   = 0x4000
	rxBankBase   = 0x6000
	bankPerSock    = 2048 // 2 KiB per socket, per default TMSR/RMSR=0x55
	ringMask       = bankPerSock - 1
	stagingSize    = 4096 // local RX staging capacity (§3); MACRAW uses it linearly
	numSockets     = 4
	macrawMaxFrame = 1600 // §8: MACRAW SEND frames outside (0, 1600] bytes are dropped
)

// Reset defaults (§3 Lifecycle / Invariants).
var (
	defaultGateway = [4]byte{192, 168, 1, 1}
	defaultSubnet  = [4]byte{255, 255, 255, 0}
	defaultIP      = [4]byte{192, 168, 1, 100}
)

const (
	defaultRTRHi = 0x07
	defaultRTRLo = 0xD0
	defaultRCR   = 8
	defaultRMSR  = 0x55
	defaultTMSR  = 0x55
)

// ROM identification bytes returned for detection probes (§4.2).
const (
	romIDOffset1 = 0x05
	romIDByte1   = 0x38
	romIDOffset2 = 0x07
	romIDByte2   = 0x18
)

func socketRegBase(n int) int { return socketBase + n*socketStride }
func txBase(n int) int        { return txBankBase + n*bankPerSock }
func rxBase(n int) int        { return rxBankBase + n*bankPerSock }
