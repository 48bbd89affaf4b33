// Package serial opens and configures a POSIX serial device the way
// §4.2's port utilities require: read-write, non-blocking, 8N1, with
// local control enabled and all line-discipline processing (echo,
// canonical mode, flow control, NL/CR translation) disabled so that raw
// framed protocol bytes pass through unmodified.
package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Port is an open, configured serial device.
type Port struct {
	f  *os.File
	fd int
}

// rateTable mirrors baud_to_flag()/flag_to_baud(): only these rates are
// supported, matching what termios itself can represent as a discrete
// speed_t value.
var rateTable = map[int]uint32{
	0:       unix.B0,
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
}

// BaudToFlag returns the termios speed_t flag for rate, or an error if
// the rate has no discrete termios representation.
func BaudToFlag(rate int) (uint32, error) {
	flag, ok := rateTable[rate]
	if !ok {
		return 0, fmt.Errorf("serial: unsupported baud rate %d", rate)
	}
	return flag, nil
}

// FlagToBaud is the inverse of BaudToFlag, used to report back whatever
// rate the kernel actually applied.
func FlagToBaud(flag uint32) (int, error) {
	for rate, f := range rateTable {
		if f == flag {
			return rate, nil
		}
	}
	return 0, fmt.Errorf("serial: unrecognised termios speed flag 0x%x", flag)
}

// Open opens device and configures it for raw, 8N1 communication at
// baud. The baud rate actually applied is read back and compared against
// the request; a mismatch is reported but the port is still returned, as
// recovering such a link is sometimes still useful (see original's
// commented-out close-on-mismatch behaviour).
func Open(device string, baud int) (*Port, error) {
	rate, err := BaudToFlag(baud)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NDELAY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcgetattr %s: %w", device, err)
	}

	t.Ispeed = rate
	t.Ospeed = rate
	t.Oflag &^= unix.OPOST
	t.Cflag &^= unix.PARENB | unix.CSTOPB | unix.CSIZE
	t.Cflag |= unix.CLOCAL | unix.CREAD | unix.CS8
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cc[unix.VTIME] = 1
	t.Cc[unix.VMIN] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcsetattr %s: %w", device, err)
	}

	check, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err == nil && check.Ispeed != rate {
		got, _ := FlagToBaud(check.Ispeed)
		fmt.Fprintf(os.Stderr, "serial: %s accepted baud %d but reports %d\n", device, baud, got)
	}

	return &Port{f: os.NewFile(uintptr(fd), device), fd: fd}, nil
}

// Read satisfies io.Reader. A zero-length, nil-error read indicates the
// VMIN=0/VTIME=1 timeout elapsed with nothing buffered, the framed
// decoders' cue to treat it as protocol.ErrZeroRead rather than EOF.
func (p *Port) Read(b []byte) (int, error) { return p.f.Read(b) }

// Write satisfies io.Writer.
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }

// Close releases the underlying file descriptor.
func (p *Port) Close() error { return p.f.Close() }

// Fd returns the raw file descriptor, for use with poll/select-based
// multiplexing in source threads that manage their own read loop.
func (p *Port) Fd() int { return p.fd }
