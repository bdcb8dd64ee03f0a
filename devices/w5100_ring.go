package devices

// ringBuffer is the per-socket RX staging buffer described in §3 and
// §4.4: regular sockets report fill level modulo a 2 KiB window;
// MACRAW reports the raw linear fill level since it has no wrap
// semantics visible to software (the client drains it with RECV and
// the whole thing resets to empty).
type ringBuffer struct {
	buf    []byte
	head   uint32
	tail   uint32
	linear bool // true for MACRAW: Len() is tail-head, not modulo
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]byte, size)}
}

// window reports the modulus regular (non-MACRAW) sockets wrap at:
// bankPerSock, the actual 2 KiB bus window a socket's RX bank exposes
// at rxBankBase (§4.2). MACRAW staging has no such hardware window and
// wraps at the full backing buffer instead.
func (r *ringBuffer) window() int {
	if r.linear {
		return len(r.buf)
	}
	return bankPerSock
}

// Len reports the current fill level per §3's two formulas.
func (r *ringBuffer) Len() int {
	filled := r.tail - r.head
	if r.linear {
		return int(filled)
	}
	return int(filled) % bankPerSock
}

// Free reports remaining capacity before Push would start dropping
// bytes.
func (r *ringBuffer) Free() int {
	return r.window() - int(r.tail-r.head)
}

// Push appends data to the ring, wrapping storage at window(). Bytes
// beyond remaining capacity are dropped (never observed in the
// scenarios this card supports — a single virtual TCP/DHCP/ARP flow
// never queues more than a few staged frames).
func (r *ringBuffer) Push(data []byte) int {
	n := len(data)
	if free := r.Free(); n > free {
		n = free
	}
	mod := r.window()
	for i := 0; i < n; i++ {
		r.buf[int(r.tail)%mod] = data[i]
		r.tail++
	}
	return n
}

// At returns the byte at ring-relative position pos (already reduced
// to the CPU's 2 KiB address window by the caller), per the bus-read
// path in §4.2.
func (r *ringBuffer) At(pos int) byte {
	return r.buf[pos%r.window()]
}

// Consume advances head by n bytes (software acknowledging RX_RD),
// resetting to empty once fully drained, per the RECV row of §4.3's
// command table.
func (r *ringBuffer) Consume(n int) {
	r.head += uint32(n)
	if r.head >= r.tail {
		r.head, r.tail = 0, 0
	}
}

// Reset empties the ring, e.g. on CLOSE/DISCON.
func (r *ringBuffer) Reset() {
	r.head, r.tail = 0, 0
}
