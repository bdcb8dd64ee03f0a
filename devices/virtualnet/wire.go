// Package virtualnet is the synthetic network the card answers with
// when its single MACRAW-capable socket (socket 0) is armed: an ARP
// responder for the virtual gateway, a miniature DHCP server, and a
// single-flow TCP terminator that bridges to real host sockets. None
// of it ever touches a physical NIC — every frame it "receives" comes
// from the Apple II's own MACRAW SEND, and every reply it produces is
// staged straight into the socket's RX buffer.
package virtualnet

import "encoding/binary"

const (
	EtherTypeARP  = 0x0806
	EtherTypeIPv4 = 0x0800

	ipProtoUDP = 17
	ipProtoTCP = 6

	ethHeaderLen = 14
	ipHeaderLen  = 20
	udpHeaderLen = 8
	tcpHeaderLen = 20
)

var broadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
var broadcastIP = [4]byte{255, 255, 255, 255}

type ethFrame struct {
	Dst, Src  [6]byte
	EtherType uint16
	Payload   []byte
}

func parseEthernet(frame []byte) (ethFrame, bool) {
	if len(frame) < ethHeaderLen {
		return ethFrame{}, false
	}
	var f ethFrame
	copy(f.Dst[:], frame[0:6])
	copy(f.Src[:], frame[6:12])
	f.EtherType = binary.BigEndian.Uint16(frame[12:14])
	f.Payload = frame[14:]
	return f, true
}

func buildEthernet(dst, src [6]byte, etherType uint16, payload []byte) []byte {
	out := make([]byte, ethHeaderLen+len(payload))
	copy(out[0:6], dst[:])
	copy(out[6:12], src[:])
	binary.BigEndian.PutUint16(out[12:14], etherType)
	copy(out[14:], payload)
	return out
}

type ipv4Header struct {
	TotalLen uint16
	Protocol byte
	Src, Dst [4]byte
	IHL      int // header length in bytes
}

func parseIPv4(payload []byte) (ipv4Header, []byte, bool) {
	if len(payload) < ipHeaderLen {
		return ipv4Header{}, nil, false
	}
	if payload[0]>>4 != 4 {
		return ipv4Header{}, nil, false
	}
	ihl := int(payload[0]&0x0F) * 4
	if ihl < ipHeaderLen || len(payload) < ihl {
		return ipv4Header{}, nil, false
	}
	var h ipv4Header
	h.IHL = ihl
	h.TotalLen = binary.BigEndian.Uint16(payload[2:4])
	h.Protocol = payload[9]
	copy(h.Src[:], payload[12:16])
	copy(h.Dst[:], payload[16:20])
	return h, payload[ihl:], true
}

// buildIPv4 returns a 20-byte IPv4 header (no options) with a correct
// checksum, TTL 64, followed by payload.
func buildIPv4(protocol byte, src, dst [4]byte, payload []byte) []byte {
	total := ipHeaderLen + len(payload)
	out := make([]byte, total)
	out[0] = 0x45 // version 4, IHL 5
	out[1] = 0
	binary.BigEndian.PutUint16(out[2:4], uint16(total))
	binary.BigEndian.PutUint16(out[4:6], 0) // identification
	binary.BigEndian.PutUint16(out[6:8], 0) // flags/fragment offset
	out[8] = 64                             // TTL
	out[9] = protocol
	binary.BigEndian.PutUint16(out[10:12], 0) // checksum placeholder
	copy(out[12:16], src[:])
	copy(out[16:20], dst[:])
	binary.BigEndian.PutUint16(out[10:12], ipChecksum(out[:ipHeaderLen]))
	copy(out[ipHeaderLen:], payload)
	return out
}

type udpHeader struct {
	SrcPort, DstPort uint16
}

func parseUDP(body []byte) (udpHeader, []byte, bool) {
	if len(body) < udpHeaderLen {
		return udpHeader{}, nil, false
	}
	h := udpHeader{
		SrcPort: binary.BigEndian.Uint16(body[0:2]),
		DstPort: binary.BigEndian.Uint16(body[2:4]),
	}
	return h, body[udpHeaderLen:], true
}

// buildUDP returns an 8-byte UDP header followed by payload. §4.6
// allows a zero checksum.
func buildUDP(srcPort, dstPort uint16, payload []byte) []byte {
	out := make([]byte, udpHeaderLen+len(payload))
	binary.BigEndian.PutUint16(out[0:2], srcPort)
	binary.BigEndian.PutUint16(out[2:4], dstPort)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(out)))
	binary.BigEndian.PutUint16(out[6:8], 0) // checksum
	copy(out[8:], payload)
	return out
}

type tcpHeader struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            byte
}

const (
	tcpFIN = 0x01
	tcpSYN = 0x02
	tcpRST = 0x04
	tcpPSH = 0x08
	tcpACK = 0x10
)

func parseTCP(body []byte) (tcpHeader, []byte, bool) {
	if len(body) < tcpHeaderLen {
		return tcpHeader{}, nil, false
	}
	dataOffset := int(body[12]>>4) * 4
	if dataOffset < tcpHeaderLen || len(body) < dataOffset {
		return tcpHeader{}, nil, false
	}
	h := tcpHeader{
		SrcPort: binary.BigEndian.Uint16(body[0:2]),
		DstPort: binary.BigEndian.Uint16(body[2:4]),
		Seq:     binary.BigEndian.Uint32(body[4:8]),
		Ack:     binary.BigEndian.Uint32(body[8:12]),
		Flags:   body[13],
	}
	return h, body[dataOffset:], true
}

const tcpWindow = 0x2000

// buildTCP returns a 20-byte TCP header (no options) with a pseudo-
// header checksum, followed by payload.
func buildTCP(srcIP, dstIP [4]byte, srcPort, dstPort uint16, seq, ack uint32, flags byte, payload []byte) []byte {
	seg := make([]byte, tcpHeaderLen+len(payload))
	binary.BigEndian.PutUint16(seg[0:2], srcPort)
	binary.BigEndian.PutUint16(seg[2:4], dstPort)
	binary.BigEndian.PutUint32(seg[4:8], seq)
	binary.BigEndian.PutUint32(seg[8:12], ack)
	seg[12] = 5 << 4 // data offset, no options
	seg[13] = flags
	binary.BigEndian.PutUint16(seg[14:16], tcpWindow)
	binary.BigEndian.PutUint16(seg[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(seg[18:20], 0) // urgent pointer
	copy(seg[tcpHeaderLen:], payload)
	binary.BigEndian.PutUint16(seg[16:18], tcpChecksum(srcIP, dstIP, seg))
	return seg
}

func sum16(data []byte) uint32 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	return sum
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// ipChecksum computes the standard one's-complement checksum over a
// 20-byte IPv4 header (bytes 10:12 are treated as zero).
func ipChecksum(header []byte) uint16 {
	buf := make([]byte, len(header))
	copy(buf, header)
	buf[10], buf[11] = 0, 0
	return foldChecksum(sum16(buf))
}

// tcpChecksum computes the TCP checksum over the pseudo-header
// (source IP, dest IP, zero, protocol=6, TCP length) concatenated with
// the TCP header+payload (with the checksum field itself zeroed).
func tcpChecksum(srcIP, dstIP [4]byte, segment []byte) uint16 {
	pseudo := make([]byte, 12)
	copy(pseudo[0:4], srcIP[:])
	copy(pseudo[4:8], dstIP[:])
	pseudo[8] = 0
	pseudo[9] = ipProtoTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))

	buf := make([]byte, len(segment))
	copy(buf, segment)
	buf[16], buf[17] = 0, 0

	full := append(pseudo, buf...)
	return foldChecksum(sum16(full))
}
