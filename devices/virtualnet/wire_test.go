package virtualnet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"example.com/uthernet2/config"
	"example.com/uthernet2/devices/virtualnet"
)

// TestIPv4ChecksumSumsToZero exercises §8's checksum law indirectly: an
// ARP reply's enclosing IPv4 header isn't produced by this package (ARP
// has no IP layer), so this instead builds a DHCP reply — which does
// carry a real IPv4 header — and checks its one's-complement sum is
// 0xFFFF (one's-complement zero) per the checksum law.
func TestIPv4ChecksumSumsToZero(t *testing.T) {
	cfg := config.Defaults()
	xid := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	clientMAC := [6]byte{0x08, 0x00, 0x07, 0x12, 0x34, 0x56}

	sess := &virtualnet.DHCPSession{}
	reply, _, ok := sess.Handle(buildDHCPDiscover(xid, clientMAC), cfg)
	if !ok {
		t.Fatal("expected DISCOVER to be recognized")
	}

	ipHeader := reply[14 : 14+20]
	var sum uint32
	for i := 0; i+1 < len(ipHeader); i += 2 {
		sum += uint32(ipHeader[i])<<8 | uint32(ipHeader[i+1])
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	assert.EqualValues(t, 0xFFFF, sum, "one's-complement sum of an IPv4 header with a correct checksum is all-ones")
}
