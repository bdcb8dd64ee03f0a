package virtualnet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/uthernet2/config"
	"example.com/uthernet2/devices/virtualnet"
)

func buildARPRequest(senderMAC [6]byte, senderIP [4]byte, targetIP [4]byte) []byte {
	frame := make([]byte, 14+28)
	copy(frame[0:6], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	copy(frame[6:12], senderMAC[:])
	frame[12], frame[13] = 0x08, 0x06 // ARP

	p := frame[14:]
	p[0], p[1] = 0x00, 0x01 // htype ethernet
	p[2], p[3] = 0x08, 0x00 // ptype IPv4
	p[4], p[5] = 6, 4
	p[6], p[7] = 0x00, 0x01 // request
	copy(p[8:14], senderMAC[:])
	copy(p[14:18], senderIP[:])
	copy(p[24:28], targetIP[:])
	return frame
}

func TestHandleARP_GatewayRequest(t *testing.T) {
	cfg := config.Defaults()
	clientMAC := [6]byte{0x08, 0x00, 0x07, 0x12, 0x34, 0x56}
	clientIP := [4]byte{192, 168, 65, 100}
	gatewayIP, err := config.IP4(cfg.GatewayIP)
	require.NoError(t, err)

	reply, ok := virtualnet.HandleARP(buildARPRequest(clientMAC, clientIP, gatewayIP), cfg)
	require.True(t, ok)
	require.Len(t, reply, 42)

	assert.Equal(t, clientMAC[:], reply[0:6], "reply destined to the requester")
	gatewayMAC, err := config.MAC6(cfg.GatewayMAC)
	require.NoError(t, err)
	assert.Equal(t, gatewayMAC[:], reply[6:12], "reply sourced from the gateway MAC")

	p := reply[14:]
	assert.EqualValues(t, 2, uint16(p[6])<<8|uint16(p[7]), "operation = reply")
	assert.Equal(t, gatewayMAC[:], p[8:14], "sender hardware address")
	assert.Equal(t, gatewayIP[:], p[14:18], "sender protocol address")
	assert.Equal(t, clientMAC[:], p[18:24], "target hardware address echoed back")
}

func TestHandleARP_NonGatewayTargetIgnored(t *testing.T) {
	cfg := config.Defaults()
	clientMAC := [6]byte{0x08, 0x00, 0x07, 0x12, 0x34, 0x56}
	clientIP := [4]byte{192, 168, 65, 100}
	otherIP := [4]byte{8, 8, 8, 8}

	_, ok := virtualnet.HandleARP(buildARPRequest(clientMAC, clientIP, otherIP), cfg)
	assert.False(t, ok, "ARP for a non-gateway IP must be dropped")
}
