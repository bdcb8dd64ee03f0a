package virtualnet

import (
	"example.com/uthernet2/config"
	"example.com/uthernet2/network"
)

// HostDialer is the seam between the virtual TCP terminator and real
// BSD sockets, the same role network.HostNetInterface plays for the
// teacher's NE2000 device — an interface so tests can substitute a
// fake host without opening real sockets.
type HostDialer interface {
	Dial(ip [4]byte, port uint16) (fd int, immediate bool, err error)
	PollWritable(fd int, timeoutMs int) (bool, error)
	PollReadable(fd int, timeoutMs int) (bool, error)
	SocketError(fd int) error
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)
	Close(fd int) error
}

// hostDialer is the production HostDialer, backed by real non-
// blocking sockets via the network package.
type hostDialer struct{}

// NewHostDialer returns the real, syscall-backed HostDialer.
func NewHostDialer() HostDialer { return hostDialer{} }

func (hostDialer) Dial(ip [4]byte, port uint16) (int, bool, error) {
	fd, err := network.OpenStream()
	if err != nil {
		return -1, false, err
	}
	immediate, err := network.Connect(fd, ip, port)
	if err != nil {
		network.Close(fd)
		return -1, false, err
	}
	return fd, immediate, nil
}

func (hostDialer) PollWritable(fd int, timeoutMs int) (bool, error) { return network.PollWritable(fd, timeoutMs) }
func (hostDialer) PollReadable(fd int, timeoutMs int) (bool, error) { return network.PollReadable(fd, timeoutMs) }
func (hostDialer) SocketError(fd int) error                        { return network.SocketError(fd) }
func (hostDialer) Read(fd int, buf []byte) (int, error) {
	n, err := network.Read(fd, buf)
	if network.WouldBlock(err) {
		return 0, nil
	}
	return n, err
}
func (hostDialer) Write(fd int, buf []byte) (int, error) { return network.Write(fd, buf) }
func (hostDialer) Close(fd int) error                    { return network.Close(fd) }

const (
	tcpConnectTimeoutMs = 100
	tcpPollTimeoutMs    = 50
	tcpInitialSeq       = 12345
	tcpMaxSegment       = 1400
)

// TCPSession is the card's single virtual TCP termination (§3:
// virtual_tcp). At most one is ever live; creating a new one replaces
// whatever came before (§9's Open Question is resolved as "replace",
// matching the documented source behavior).
type TCPSession struct {
	dialer HostDialer

	fd int

	remoteMAC  [6]byte // Apple II client's MAC
	remoteIP   [4]byte // Apple II client's source IP
	theirIP    [4]byte // the IP the client addressed; used as our reply source
	remotePort uint16  // client's source port
	localPort  uint16  // port the client dialed; our reply source port

	serverMAC [6]byte

	ourSeq      uint32
	theirSeq    uint32
	established bool
	finSent     bool
	finReceived bool
}

// Close releases the host socket, if any.
func (t *TCPSession) Close() {
	if t == nil || t.fd < 0 {
		return
	}
	t.dialer.Close(t.fd)
	t.fd = -1
}

// IsTCPForGateway reports whether frame is an IPv4/TCP frame destined
// for one of the synthetic gateway subnets, per §4.7's detection rule.
func IsTCPForGateway(frame []byte, cfg config.VirtualNetwork) bool {
	eth, ok := parseEthernet(frame)
	if !ok || eth.EtherType != EtherTypeIPv4 {
		return false
	}
	ip, _, ok := parseIPv4(eth.Payload)
	if !ok || ip.Protocol != ipProtoTCP {
		return false
	}
	for _, o := range cfg.RedirectOctet {
		if int(ip.Dst[2]) == o {
			return true
		}
	}
	return false
}

// HandleSegment dispatches one TCP/IP frame the Apple II's virtual
// NIC sent while MACRAW is armed. It returns the (possibly nil)
// active session after processing, any reply frames to stage into the
// RX buffer in order, and whether this segment started a brand new
// flow (for metrics).
func HandleSegment(existing *TCPSession, frame []byte, cfg config.VirtualNetwork, dialer HostDialer) (next *TCPSession, replies [][]byte, newFlow bool) {
	eth, ok := parseEthernet(frame)
	if !ok || eth.EtherType != EtherTypeIPv4 {
		return existing, nil, false
	}
	ip, ipBody, ok := parseIPv4(eth.Payload)
	if !ok || ip.Protocol != ipProtoTCP {
		return existing, nil, false
	}
	tcp, payload, ok := parseTCP(ipBody)
	if !ok {
		return existing, nil, false
	}

	isSYN := tcp.Flags&tcpSYN != 0
	isACK := tcp.Flags&tcpACK != 0
	isFIN := tcp.Flags&tcpFIN != 0

	if isSYN && !isACK {
		if existing != nil {
			existing.Close()
		}
		sess, reply := newTCPFlow(eth, ip, tcp, cfg, dialer)
		if reply != nil {
			return sess, [][]byte{reply}, true
		}
		return nil, nil, false
	}

	if existing == nil || eth.Src != existing.remoteMAC || tcp.SrcPort != existing.remotePort || tcp.DstPort != existing.localPort {
		return existing, nil, false
	}

	if isFIN {
		existing.theirSeq += 1
		var out [][]byte
		out = append(out, existing.buildSegment(tcpACK, nil))
		if !existing.finSent {
			out = append(out, existing.buildSegment(tcpFIN|tcpACK, nil))
			existing.ourSeq++
			existing.finSent = true
		}
		existing.finReceived = true
		existing.established = false
		existing.Close()
		return nil, out, false
	}

	if len(payload) > 0 {
		existing.established = true // the data-carrying ACK also completes the handshake
		existing.theirSeq += uint32(len(payload))
		var out [][]byte
		if existing.fd >= 0 {
			existing.dialer.Write(existing.fd, payload)
		}
		out = append(out, existing.buildSegment(tcpACK, nil))
		out = append(out, existing.drain()...)
		return existing, out, false
	}

	if isACK && !existing.established {
		existing.established = true
		return existing, nil, false
	}

	return existing, nil, false
}

// Poll implements virtual_tcp_poll(0) (§4.7): drain whatever the host
// socket has ready into PSH+ACK segments, issuing FIN+ACK on a
// zero-byte read.
func Poll(existing *TCPSession) (next *TCPSession, replies [][]byte) {
	if existing == nil || !existing.established {
		return existing, nil
	}
	out := existing.drain()
	if existing.fd < 0 {
		return nil, out
	}
	return existing, out
}

func newTCPFlow(eth ethFrame, ip ipv4Header, tcp tcpHeader, cfg config.VirtualNetwork, dialer HostDialer) (*TCPSession, []byte) {
	redirectHost, err := config.IP4(cfg.RedirectHost)
	if err != nil {
		return nil, nil
	}
	dialIP := network.Redirect(ip.Dst, cfg.RedirectOctet, redirectHost)

	fd, immediate, err := dialer.Dial(dialIP, tcp.DstPort)
	if err != nil {
		return nil, rstReply(eth, ip, tcp)
	}
	if !immediate {
		ready, err := dialer.PollWritable(fd, tcpConnectTimeoutMs)
		if err != nil || !ready {
			dialer.Close(fd)
			return nil, rstReply(eth, ip, tcp)
		}
		if sockErr := dialer.SocketError(fd); sockErr != nil {
			dialer.Close(fd)
			return nil, rstReply(eth, ip, tcp)
		}
	}

	sess := &TCPSession{
		dialer:     dialer,
		fd:         fd,
		remoteMAC:  eth.Src,
		remoteIP:   ip.Src,
		theirIP:    ip.Dst,
		remotePort: tcp.SrcPort,
		localPort:  tcp.DstPort,
		serverMAC:  eth.Dst, // reply as the MAC the client addressed
		ourSeq:     tcpInitialSeq,
		theirSeq:   tcp.Seq + 1,
	}
	reply := sess.buildSegment(tcpSYN|tcpACK, nil)
	sess.ourSeq++
	return sess, reply
}

func rstReply(eth ethFrame, ip ipv4Header, tcp tcpHeader) []byte {
	tcpSeg := buildTCP(ip.Dst, ip.Src, tcp.DstPort, tcp.SrcPort, 0, tcp.Seq+1, tcpRST|tcpACK, nil)
	ipPkt := buildIPv4(ipProtoTCP, ip.Dst, ip.Src, tcpSeg)
	return buildEthernet(eth.Src, eth.Dst, EtherTypeIPv4, ipPkt)
}

// buildSegment builds one reply TCP segment from the session's
// current sequence state, with IP source set to the address the
// client originally addressed (§3/§4.7).
func (t *TCPSession) buildSegment(flags byte, payload []byte) []byte {
	tcpSeg := buildTCP(t.theirIP, t.remoteIP, t.localPort, t.remotePort, t.ourSeq, t.theirSeq, flags, payload)
	ipPkt := buildIPv4(ipProtoTCP, t.theirIP, t.remoteIP, tcpSeg)
	return buildEthernet(t.remoteMAC, t.serverMAC, EtherTypeIPv4, ipPkt)
}

// drain reads whatever is available from the host socket (bounded by
// a single poll) and emits it as PSH+ACK segments of up to
// tcpMaxSegment bytes each, advancing ourSeq. A zero-byte read is a
// host-side close: emit FIN+ACK and release the socket.
func (t *TCPSession) drain() [][]byte {
	if t.fd < 0 {
		return nil
	}
	ready, err := t.dialer.PollReadable(t.fd, tcpPollTimeoutMs)
	if err != nil || !ready {
		return nil
	}

	var out [][]byte
	buf := make([]byte, tcpMaxSegment)
	for {
		n, err := t.dialer.Read(t.fd, buf)
		if err != nil || n == 0 {
			if err == nil && n == 0 {
				out = append(out, t.buildSegment(tcpFIN|tcpACK, nil))
				t.ourSeq++
				t.finSent = true
				t.established = false
				t.Close()
			}
			break
		}
		out = append(out, t.buildSegment(tcpPSH|tcpACK, buf[:n]))
		t.ourSeq += uint32(n)
		if n < tcpMaxSegment {
			break
		}
	}
	return out
}
