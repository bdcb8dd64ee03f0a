package virtualnet

import (
	"encoding/binary"

	"example.com/uthernet2/config"
)

const (
	arpHTypeEthernet = 1
	arpOperRequest   = 1
	arpOperReply     = 2
	arpPayloadLen    = 28 // htype,ptype,hlen,plen,oper,sha,spa,tha,tpa
)

// HandleARP implements §4.5: only an ARP request for the virtual
// gateway's address gets a reply; everything else is dropped (ok =
// false, no reply built).
func HandleARP(frame []byte, cfg config.VirtualNetwork) (reply []byte, ok bool) {
	eth, parsed := parseEthernet(frame)
	if !parsed || eth.EtherType != EtherTypeARP {
		return nil, false
	}
	if len(eth.Payload) < arpPayloadLen {
		return nil, false
	}
	p := eth.Payload
	htype := binary.BigEndian.Uint16(p[0:2])
	ptype := binary.BigEndian.Uint16(p[2:4])
	hlen, plen := p[4], p[5]
	oper := binary.BigEndian.Uint16(p[6:8])
	if htype != arpHTypeEthernet || ptype != EtherTypeIPv4 || hlen != 6 || plen != 4 {
		return nil, false
	}
	if oper != arpOperRequest {
		return nil, false
	}
	var sha, tha [6]byte
	var spa, tpa [4]byte
	copy(sha[:], p[8:14])
	copy(spa[:], p[14:18])
	copy(tha[:], p[18:24])
	copy(tpa[:], p[24:28])

	gatewayIP, err := config.IP4(cfg.GatewayIP)
	if err != nil || tpa != gatewayIP {
		return nil, false
	}
	gatewayMAC, err := config.MAC6(cfg.GatewayMAC)
	if err != nil {
		return nil, false
	}

	replyPayload := make([]byte, arpPayloadLen)
	binary.BigEndian.PutUint16(replyPayload[0:2], arpHTypeEthernet)
	binary.BigEndian.PutUint16(replyPayload[2:4], EtherTypeIPv4)
	replyPayload[4] = 6
	replyPayload[5] = 4
	binary.BigEndian.PutUint16(replyPayload[6:8], arpOperReply)
	copy(replyPayload[8:14], gatewayMAC[:])
	copy(replyPayload[14:18], gatewayIP[:])
	copy(replyPayload[18:24], sha[:]) // target fields copied from the request
	copy(replyPayload[24:28], spa[:])

	return buildEthernet(sha, gatewayMAC, EtherTypeARP, replyPayload), true
}
