// Updated devices/w5100_socket.go
package devices

import (
	"example.com/uthernet2/config"
	"example.com/uthernet2/devices/virtualnet"
	"example.com/uthernet2/network"
)

// socketState is the per-socket extension state (§3): a host file
// descriptor or equivalent handle, a non-blocking-connect-in-progress
// flag, a local RX staging buffer, and a MACRAW-mode flag. Everything
// else about a socket lives in the authoritative memory image.
type socketState struct {
	n          int
	fd         int
	connecting bool
	macraw     bool
	listening  bool
	rxStaging  *ringBuffer
	prevRXRD   uint16 // last Sn_RX_RD value consumed, for delta-on-RECV
}

func newSocketState(n int) *socketState {
	return &socketState{n: n, fd: -1, rxStaging: newRingBuffer(stagingSize)}
}

func (s *socketState) close() {
	if s.fd >= 0 {
		network.Close(s.fd)
	}
	s.fd = -1
	s.connecting = false
	s.macraw = false
	s.listening = false
	s.rxStaging.Reset()
	s.rxStaging.linear = false
	s.prevRXRD = 0
}

// executeCommand implements §4.3's command dispatcher.
func (u *Uthernet2) executeCommand(n int, cmd byte) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	mr := u.memory[base+sMR] & 0x0F

	switch cmd {
	case crOPEN:
		u.cmdOpen(n, mr)
	case crLISTEN:
		u.cmdListen(n)
	case crCONNECT:
		u.cmdConnect(n)
	case crDISCON, crCLOSE:
		sock.close()
		u.memory[base+sSR] = srCLOSED
		u.met.SocketsOpen.Dec()
	case crSEND:
		u.cmdSend(n)
	case crRECV:
		u.cmdRecv(n)
	}
}

func (u *Uthernet2) cmdOpen(n int, mr byte) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	switch mr {
	case mrTCP:
		fd, err := network.OpenStream()
		if err != nil {
			u.log.Debugf("socket %d: open stream failed: %v", n, err)
			u.memory[base+sSR] = srCLOSED
			return
		}
		sock.fd = fd
		u.memory[base+sSR] = srINIT
		u.met.SocketsOpen.Inc()
	case mrUDP:
		fd, err := network.OpenDatagram()
		if err != nil {
			u.log.Debugf("socket %d: open datagram failed: %v", n, err)
			u.memory[base+sSR] = srCLOSED
			return
		}
		sock.fd = fd
		u.memory[base+sSR] = srUDP
		u.met.SocketsOpen.Inc()
	case mrMACRAW:
		if n != 0 {
			u.log.Debugf("socket %d: MACRAW only permitted on socket 0", n)
			return
		}
		sock.macraw = true
		sock.rxStaging.linear = true
		u.memory[base+sSR] = srMACRAW
	default:
		u.log.Debugf("socket %d: OPEN with unsupported mode 0x%x", n, mr)
	}
}

func (u *Uthernet2) cmdListen(n int) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	if u.memory[base+sSR] != srINIT {
		return
	}
	port := u.readU16(base + sPORT0)
	fd, err := network.Bind(port, 1)
	if err != nil {
		u.log.Debugf("socket %d: listen on port %d failed: %v", n, port, err)
		return
	}
	network.Close(sock.fd)
	sock.fd = fd
	sock.listening = true
	u.memory[base+sSR] = srLISTEN
}

func (u *Uthernet2) cmdConnect(n int) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	if u.memory[base+sSR] != srINIT {
		return
	}
	var dip [4]byte
	copy(dip[:], u.memory[base+sDIPR0:base+sDIPR0+4])
	dport := u.readU16(base + sDPORT0)

	redirectHost, _ := config.IP4(u.cfg.RedirectHost)
	target := network.Redirect(dip, u.cfg.RedirectOctet, redirectHost)

	immediate, err := network.Connect(sock.fd, target, dport)
	if err != nil {
		u.log.Debugf("socket %d: connect failed: %v", n, err)
		sock.close()
		u.memory[base+sSR] = srCLOSED
		return
	}
	if immediate {
		u.memory[base+sSR] = srESTABLISHED
		return
	}
	sock.connecting = true
	u.memory[base+sSR] = srSYNSENT
}

func (u *Uthernet2) cmdSend(n int) {
	sock := u.sockets[n]
	base := socketRegBase(n)

	if sock.macraw {
		if u.memory[base+sSR] != srMACRAW {
			return
		}
		u.sendMACRAWFrame(n)
		return
	}
	if u.memory[base+sSR] != srESTABLISHED {
		return
	}
	wr := u.readU16(base + sTXWR0)
	rd := u.readU16(base + sTXRD0)
	pending := (wr - rd) % bankPerSock
	if pending == 0 {
		return
	}
	buf := make([]byte, pending)
	base0 := txBase(n)
	for i := range buf {
		buf[i] = u.memory[base0+int((rd+uint16(i))%bankPerSock)]
	}
	sent, err := network.Write(sock.fd, buf)
	if err != nil {
		u.log.Debugf("socket %d: send failed: %v", n, err)
		return
	}
	u.writeU16(base+sTXRD0, rd+uint16(sent))
}

// cmdRecv implements the RECV row of §4.3's command table: software
// has already advanced Sn_RX_RD to acknowledge bytes it read from the
// staging window; translate that delta into buffer consumption.
func (u *Uthernet2) cmdRecv(n int) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	rd := u.readU16(base + sRXRD0)
	delta := int(uint16(rd - sock.prevRXRD))
	if !sock.macraw {
		delta %= bankPerSock
	}
	sock.rxStaging.Consume(delta)
	sock.prevRXRD = rd
}

// pollSocket implements §4.3's socket_poll(n).
func (u *Uthernet2) pollSocket(n int) {
	sock := u.sockets[n]
	base := socketRegBase(n)
	sr := u.memory[base+sSR]

	if sock.macraw || sock.fd < 0 {
		return
	}

	if sock.connecting {
		ready, _ := network.PollWritable(sock.fd, 0)
		if ready {
			if err := network.SocketError(sock.fd); err != nil {
				sock.close()
				u.memory[base+sSR] = srCLOSED
			} else {
				sock.connecting = false
				u.memory[base+sSR] = srESTABLISHED
			}
		}
		return
	}

	if sock.listening {
		ready, _ := network.PollReadable(sock.fd, 0)
		if ready {
			nfd, err := network.Accept(sock.fd)
			if err == nil {
				network.Close(sock.fd)
				sock.fd = nfd
				sock.listening = false
				u.memory[base+sSR] = srESTABLISHED
			}
		}
		return
	}

	if sr == srESTABLISHED {
		ready, _ := network.PollReadable(sock.fd, 0)
		if !ready {
			return
		}
		buf := make([]byte, bankPerSock)
		n2, err := network.Read(sock.fd, buf)
		if err != nil && !network.WouldBlock(err) {
			sock.close()
			u.memory[base+sSR] = srCLOSED
			return
		}
		if err == nil && n2 == 0 {
			u.memory[base+sSR] = srCLOSEWAIT
			return
		}
		sock.rxStaging.Push(buf[:n2])
	}
}

// sendMACRAWFrame implements §4.4's MACRAW SEND path: pull the frame
// the Apple II staged in socket 0's TX bank, hand it to whichever
// synthetic responder recognizes it, and stage any reply back into the
// same socket's RX window with the 2-byte big-endian length prefix
// MACRAW framing requires.
func (u *Uthernet2) sendMACRAWFrame(n int) {
	base := socketRegBase(n)

	wr := u.readU16(base + sTXWR0)
	rd := u.readU16(base + sTXRD0)
	pending := (wr - rd) % bankPerSock
	if pending == 0 {
		u.log.Debugf("socket %d: MACRAW SEND with empty TX buffer, dropping", n)
		u.met.FramesDropped.Inc()
		return
	}
	if pending > macrawMaxFrame {
		u.log.Debugf("socket %d: MACRAW SEND frame length %d exceeds %d, dropping", n, pending, macrawMaxFrame)
		u.met.FramesDropped.Inc()
		return
	}
	frame := make([]byte, pending)
	txb := txBase(n)
	for i := range frame {
		frame[i] = u.memory[txb+int((rd+uint16(i))%bankPerSock)]
	}
	u.writeU16(base+sTXRD0, rd+uint16(pending))

	switch {
	case virtualnet.IsDHCP(frame):
		reply, lease, ok := u.dhcp.Handle(frame, u.cfg)
		if !ok {
			return
		}
		if lease.Completed {
			copy(u.memory[regSIPR:], lease.ClientIP[:])
			copy(u.memory[regGAR:], lease.GatewayIP[:])
			copy(u.memory[regSUBR:], lease.Subnet[:])
			u.met.DHCPLeasesIssued.Inc()
		}
		if reply != nil {
			u.stageMACRAWReply(n, reply)
		}

	case virtualnet.IsTCPForGateway(frame, u.cfg):
		next, replies, _ := virtualnet.HandleSegment(u.vtcp, frame, u.cfg, u.dialer)
		if u.vtcp != nil && next == nil {
			u.met.TCPFlowsTerminated.Inc()
		}
		u.vtcp = next
		for _, r := range replies {
			u.stageMACRAWReply(n, r)
		}

	default:
		if reply, ok := virtualnet.HandleARP(frame, u.cfg); ok {
			u.met.ARPRepliesSent.Inc()
			u.stageMACRAWReply(n, reply)
			return
		}
		u.met.FramesDropped.Inc()
	}
}

// pollVirtualTCP drains virtual_tcp_poll(0) (§4.7) on every socket-0
// register read while MACRAW is armed, staging whatever segments the
// bridged host connection produced.
func (u *Uthernet2) pollVirtualTCP() {
	if u.vtcp == nil {
		return
	}
	next, replies := virtualnet.Poll(u.vtcp)
	if next == nil {
		u.met.TCPFlowsTerminated.Inc()
	}
	u.vtcp = next
	for _, r := range replies {
		u.stageMACRAWReply(0, r)
	}
}

// stageMACRAWReply writes a 2-byte big-endian length prefix followed
// by frame into socket n's RX staging buffer (§4.4). The prefix value
// counts the whole staged entry, itself included (§8's law: prefix =
// total_bytes_written_including_prefix).
func (u *Uthernet2) stageMACRAWReply(n int, frame []byte) {
	total := len(frame) + 2
	header := []byte{byte(total >> 8), byte(total)}
	sock := u.sockets[n]
	sock.rxStaging.Push(header)
	sock.rxStaging.Push(frame)
}
