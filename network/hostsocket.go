// Package network bridges the card's virtual sockets to real BSD
// sockets on the host, the same way the teacher's network.TapDevice
// bridges a NIC device to a host TUN/TAP file descriptor — raw
// syscalls plus golang.org/x/sys/unix, non-blocking throughout, with
// poll(2) standing in for the teacher's own ioctl-heavy style.
package network

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Redirect implements the §4.3 redirect rule: any 192.168.x.y
// destination whose third octet x is in redirectOctets resolves to
// redirectHost; every other destination resolves to itself.
// redirect(redirect(ip)) == redirect(ip) always, since redirectHost is
// never itself such a 192.168 address in any sane configuration.
func Redirect(ip [4]byte, redirectOctets []int, redirectHost [4]byte) [4]byte {
	if ip[0] != 192 || ip[1] != 168 {
		return ip
	}
	for _, o := range redirectOctets {
		if int(ip[2]) == o {
			return redirectHost
		}
	}
	return ip
}

// OpenStream creates a non-blocking TCP socket.
func OpenStream() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrap(err, "network: create stream socket")
	}
	return fd, nil
}

// OpenDatagram creates a non-blocking UDP socket.
func OpenDatagram() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrap(err, "network: create datagram socket")
	}
	return fd, nil
}

// Connect starts a non-blocking connect to ip:port. immediate is true
// if the connection completed synchronously (common for loopback).
func Connect(fd int, ip [4]byte, port uint16) (immediate bool, err error) {
	addr := &unix.SockaddrInet4{Port: int(port), Addr: ip}
	err = unix.Connect(fd, addr)
	if err == nil {
		return true, nil
	}
	if err == unix.EINPROGRESS {
		return false, nil
	}
	return false, errors.Wrapf(err, "network: connect to %d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], port)
}

// Bind binds and listens on port with the given backlog, returning a
// non-blocking listening socket.
func Bind(port uint16, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrap(err, "network: create listen socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "network: SO_REUSEADDR")
	}
	addr := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "network: bind port %d", port)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "network: listen port %d", port)
	}
	return fd, nil
}

// BindDatagram binds a non-blocking UDP socket to port.
func BindDatagram(port uint16) (int, error) {
	fd, err := OpenDatagram()
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "network: bind udp port %d", port)
	}
	return fd, nil
}

// Accept accepts a pending connection, returning a non-blocking peer
// socket.
func Accept(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}

// PollWritable waits up to timeoutMs for fd to become writable.
func PollWritable(fd int, timeoutMs int) (bool, error) {
	return poll(fd, unix.POLLOUT, timeoutMs)
}

// PollReadable waits up to timeoutMs for fd to become readable.
func PollReadable(fd int, timeoutMs int) (bool, error) {
	return poll(fd, unix.POLLIN, timeoutMs)
}

func poll(fd int, events int16, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, errors.Wrap(err, "network: poll")
	}
	if n == 0 {
		return false, nil
	}
	return fds[0].Revents&events != 0, nil
}

// SocketError returns the pending SO_ERROR for fd, or nil if none is
// set. Used to discover whether a non-blocking connect succeeded or
// failed once the socket reports writable.
func SocketError(fd int) error {
	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "network: SO_ERROR")
	}
	if val != 0 {
		return unix.Errno(val)
	}
	return nil
}

// Read reads from fd without blocking. A zero-length, nil-error
// result means the peer performed an orderly shutdown.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, errReadWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Write writes to fd without blocking.
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Close closes fd unless it is one of the three reserved standard
// streams (§7: "reset... closes every open host handle that is not a
// reserved standard stream").
func Close(fd int) error {
	if fd < 0 || fd <= 2 {
		return nil
	}
	return unix.Close(fd)
}

// errReadWouldBlock is returned by Read when no data is currently
// available; callers treat it the same as (0, nil) rather than a
// real I/O error.
var errReadWouldBlock = errors.New("network: read would block")

// WouldBlock reports whether err is the sentinel Read returns for
// EAGAIN.
func WouldBlock(err error) bool {
	return err == errReadWouldBlock
}
