package virtualnet

import (
	"encoding/binary"

	"example.com/uthernet2/config"
)

// DHCPState tracks the miniature DHCP server's progress, mirroring
// §3's state enum exactly.
type DHCPState int

const (
	DHCPIdle DHCPState = iota
	DHCPDiscoverSeen
	DHCPOfferSent
	DHCPRequestSeen
	DHCPComplete
)

// DHCPSession is the per-card DHCP responder state (§3: dhcp_state,
// dhcp_xid, client_mac).
type DHCPSession struct {
	State     DHCPState
	XID       [4]byte
	ClientMAC [6]byte
}

// Lease is what the responder hands back to the register file once a
// client completes the handshake (§4.6: "write the negotiated
// IP/gateway/mask into the common-register area").
type Lease struct {
	ClientIP  [4]byte
	GatewayIP [4]byte
	Subnet    [4]byte
	Completed bool
}

const (
	bootpClientPort = 68
	bootpServerPort = 67

	dhcpFixedLen  = 236
	dhcpCookieLen = 4
	dhcpMinPadded = 300

	dhcpOpDiscover = 1
	dhcpOpOffer    = 2
	dhcpOpRequest  = 3
	dhcpOpAck      = 5

	bootReply = 2
	bootReq   = 1
)

var dhcpMagicCookie = [4]byte{99, 130, 83, 99}

// IsDHCP reports whether frame looks like a BOOTP/DHCP client message
// per the detection rule in §4.6.
func IsDHCP(frame []byte) bool {
	_, body, ok := dhcpBody(frame)
	return ok && body != nil
}

// dhcpBody validates the Ethernet/IPv4/UDP envelope and returns the
// raw DHCP message body (fixed header + options), or ok=false.
func dhcpBody(frame []byte) (ethFrame, []byte, bool) {
	eth, ok := parseEthernet(frame)
	if !ok || eth.EtherType != EtherTypeIPv4 {
		return ethFrame{}, nil, false
	}
	ip, ipPayload, ok := parseIPv4(eth.Payload)
	if !ok || ip.Protocol != ipProtoUDP {
		return ethFrame{}, nil, false
	}
	udp, body, ok := parseUDP(ipPayload)
	if !ok || udp.SrcPort != bootpClientPort || udp.DstPort != bootpServerPort {
		return ethFrame{}, nil, false
	}
	if len(body) < dhcpFixedLen+dhcpCookieLen {
		return ethFrame{}, nil, false
	}
	var cookie [4]byte
	copy(cookie[:], body[dhcpFixedLen:dhcpFixedLen+dhcpCookieLen])
	if cookie != dhcpMagicCookie {
		return ethFrame{}, nil, false
	}
	if _, ok := findDHCPOption(body, 53); !ok {
		return ethFrame{}, nil, false
	}
	return eth, body, true
}

func findDHCPOption(body []byte, code byte) ([]byte, bool) {
	pos := dhcpFixedLen + dhcpCookieLen
	for pos < len(body) {
		c := body[pos]
		if c == 0xFF {
			break
		}
		if c == 0x00 {
			pos++
			continue
		}
		if pos+1 >= len(body) {
			break
		}
		l := int(body[pos+1])
		if pos+2+l > len(body) {
			break
		}
		val := body[pos+2 : pos+2+l]
		if c == code {
			return val, true
		}
		pos += 2 + l
	}
	return nil, false
}

// Handle implements §4.6's DISCOVER/REQUEST handling. ok is false if
// frame is not a DHCP message this session recognizes, in which case
// the caller should silently drop it.
func (s *DHCPSession) Handle(frame []byte, cfg config.VirtualNetwork) (reply []byte, lease Lease, ok bool) {
	eth, body, recognized := dhcpBody(frame)
	if !recognized {
		return nil, Lease{}, false
	}
	msgType, found := findDHCPOption(body, 53)
	if !found || len(msgType) != 1 {
		return nil, Lease{}, false
	}

	var xid [4]byte
	copy(xid[:], body[4:8])
	var clientMAC [6]byte
	copy(clientMAC[:], body[28:34])

	clientIP, err := config.IP4(cfg.ClientIP)
	if err != nil {
		return nil, Lease{}, false
	}
	gatewayIP, err := config.IP4(cfg.GatewayIP)
	if err != nil {
		return nil, Lease{}, false
	}
	subnet, err := config.IP4(cfg.Subnet)
	if err != nil {
		return nil, Lease{}, false
	}
	dns, err := config.IP4(cfg.DNS)
	if err != nil {
		return nil, Lease{}, false
	}
	serverMAC, err := config.MAC6(cfg.ServerMAC)
	if err != nil {
		return nil, Lease{}, false
	}

	switch msgType[0] {
	case dhcpOpDiscover:
		s.State = DHCPDiscoverSeen
		s.XID = xid
		s.ClientMAC = clientMAC
		s.State = DHCPOfferSent

		payload := s.buildReply(xid, clientMAC, clientIP, gatewayIP, subnet, dns, cfg, dhcpOpOffer)
		frame := s.wrapBroadcast(eth, serverMAC, clientIP, payload)
		return frame, Lease{}, true

	case dhcpOpRequest:
		if xid != s.XID || clientMAC != s.ClientMAC {
			return nil, Lease{}, false
		}
		s.State = DHCPRequestSeen

		payload := s.buildReply(xid, clientMAC, clientIP, gatewayIP, subnet, dns, cfg, dhcpOpAck)
		frame := s.wrapUnicast(eth, serverMAC, clientMAC, clientIP, payload)
		s.State = DHCPComplete
		return frame, Lease{ClientIP: clientIP, GatewayIP: gatewayIP, Subnet: subnet, Completed: true}, true

	default:
		return nil, Lease{}, false
	}
}

// buildReply assembles the 236-byte fixed BOOTREPLY header plus
// options, padded to at least 300 bytes (§4.6).
func (s *DHCPSession) buildReply(xid [4]byte, clientMAC [6]byte, clientIP, gatewayIP, subnet, dns [4]byte, cfg config.VirtualNetwork, msgType byte) []byte {
	body := make([]byte, dhcpFixedLen)
	body[0] = bootReply
	body[1] = 1 // htype ethernet
	body[2] = 6 // hlen
	body[3] = 0 // hops
	copy(body[4:8], xid[:])
	// secs, flags, ciaddr left zero
	copy(body[16:20], clientIP[:])  // yiaddr
	copy(body[20:24], gatewayIP[:]) // siaddr
	// giaddr left zero
	copy(body[28:34], clientMAC[:]) // chaddr (remaining 10 bytes zero)

	opts := make([]byte, 0, 64)
	opts = append(opts, dhcpMagicCookie[:]...)
	opts = append(opts, 53, 1, msgType)
	opts = append(opts, 54, 4)
	opts = append(opts, gatewayIP[:]...)
	leaseBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(leaseBytes, uint32(cfg.LeaseSeconds))
	opts = append(opts, 51, 4)
	opts = append(opts, leaseBytes...)
	opts = append(opts, 1, 4)
	opts = append(opts, subnet[:]...)
	opts = append(opts, 3, 4)
	opts = append(opts, gatewayIP[:]...)
	opts = append(opts, 6, 4)
	opts = append(opts, dns[:]...)
	opts = append(opts, 0xFF)

	out := append(body, opts...)
	if len(out) < dhcpMinPadded {
		out = append(out, make([]byte, dhcpMinPadded-len(out))...)
	}
	return out
}

func (s *DHCPSession) wrapBroadcast(req ethFrame, serverMAC [6]byte, clientIP [4]byte, dhcpPayload []byte) []byte {
	udp := buildUDP(bootpServerPort, bootpClientPort, dhcpPayload)
	serverIP := [4]byte{}
	copy(serverIP[:], dhcpPayload[20:24]) // siaddr we just wrote == gateway/server IP
	ip := buildIPv4(ipProtoUDP, serverIP, broadcastIP, udp)
	return buildEthernet(broadcastMAC, serverMAC, EtherTypeIPv4, ip)
}

func (s *DHCPSession) wrapUnicast(req ethFrame, serverMAC, clientMAC [6]byte, clientIP [4]byte, dhcpPayload []byte) []byte {
	udp := buildUDP(bootpServerPort, bootpClientPort, dhcpPayload)
	serverIP := [4]byte{}
	copy(serverIP[:], dhcpPayload[20:24])
	ip := buildIPv4(ipProtoUDP, serverIP, clientIP, udp)
	return buildEthernet(clientMAC, serverMAC, EtherTypeIPv4, ip)
}
