// Package panicbuf is a persistent panic channel: a reserved region that
// survives reset, written on a failure path and read back once on the next
// boot. The cmd binaries write it from their watchdog-timeout callbacks; no
// recover() handler writes to it, so a Go panic itself is not recorded here.
//
// A Go process has no linker-defined RAM region that survives a crash —
// the closest available primitive is an mmap'd file
// (golang.org/x/sys/unix.Mmap), which survives process exit, clean or
// otherwise, the way reserved RAM survives a watchdog reset.
package panicbuf

import (
	"encoding/binary"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Magic marks a valid, unread panic record at the start of the region.
const Magic = 0xDEAD0001

// headerSize is magic(4) + length(4).
const headerSize = 8

// ErrTooLarge is returned by Write when msg doesn't fit in the configured
// region size.
var ErrTooLarge = errors.New("panicbuf: message exceeds region size")

// Region is a persistent, mmap'd panic-message buffer backed by path.
type Region struct {
	file *os.File
	mem  []byte
}

// Open maps (creating if necessary) a fixed-size region at path.
func Open(path string, size int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err != nil {
		f.Close()
		return nil, err
	} else if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Region{file: f, mem: mem}, nil
}

// Close unmaps and closes the backing file. The region's contents persist
// on disk regardless.
func (r *Region) Close() error {
	err := unix.Munmap(r.mem)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Write records msg as the pending panic message, overwriting whatever was
// there. The cmd binaries call it from their watchdog-timeout callbacks.
func (r *Region) Write(msg string) error {
	if len(msg)+headerSize > len(r.mem) {
		return ErrTooLarge
	}
	binary.LittleEndian.PutUint32(r.mem[0:4], Magic)
	binary.LittleEndian.PutUint32(r.mem[4:8], uint32(len(msg)))
	copy(r.mem[headerSize:], msg)
	return nil
}

// TakePending returns the pending panic message, if any, and clears it,
// so a crash is reported exactly once on the boot that follows it.
func (r *Region) TakePending() (string, bool) {
	magic := binary.LittleEndian.Uint32(r.mem[0:4])
	if magic != Magic {
		return "", false
	}
	length := binary.LittleEndian.Uint32(r.mem[4:8])
	if int(length) > len(r.mem)-headerSize {
		length = uint32(len(r.mem) - headerSize)
	}
	msg := string(r.mem[headerSize : headerSize+int(length)])

	binary.LittleEndian.PutUint32(r.mem[0:4], 0)
	return msg, true
}
