// Package bytecode loads guest bytecode images for the VM collaborator
// (spec §6, VM.load) from the on-disk formats a flashing toolchain would
// actually hand the scheduler: Intel HEX records with a trailing CRC16
// checksum, optionally bundled several-to-an-archive with ar.
package bytecode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/blakesmith/ar"
	"github.com/marcinbor85/gohex"
	"github.com/sigurn/crc16"
)

// ErrChecksum is returned by LoadHex when the trailing CRC16/CCITT record
// doesn't match the decoded image. This is the "illegal bytecode" path of
// spec §7: callers are expected to print it to the console, close the VM,
// and return nil from CreateTask.
var ErrChecksum = fmt.Errorf("bytecode: checksum mismatch")

var ccitt = crc16.MakeTable(crc16.CCITTFalseParams)

// LoadHex decodes an Intel HEX image from r and verifies its trailing two
// bytes as a CRC16/CCITT-FALSE checksum over the preceding data, returning
// the verified bytecode with the checksum trailer stripped.
func LoadHex(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("bytecode: parse intel hex: %w", err)
	}

	var lo, hi uint32
	first := true
	for _, addr := range mem.GetDataAddresses() {
		if first {
			lo, hi = addr, addr
			first = false
			continue
		}
		if addr < lo {
			lo = addr
		}
		if addr > hi {
			hi = addr
		}
	}
	if first {
		return nil, fmt.Errorf("bytecode: empty hex image")
	}

	raw, err := mem.ToBinary(lo, hi-lo+1, 0xFF)
	if err != nil {
		return nil, fmt.Errorf("bytecode: extract binary: %w", err)
	}

	return verifyChecksum(raw)
}

// verifyChecksum splits off the trailing two-byte CRC16/CCITT-FALSE
// checksum from raw and verifies it against the preceding data, returning
// the data with the trailer stripped. Split out from LoadHex so the
// checksum protocol itself is testable independent of Intel HEX parsing.
func verifyChecksum(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("bytecode: image too small for checksum trailer")
	}
	data, trailer := raw[:len(raw)-2], raw[len(raw)-2:]
	want := uint16(trailer[0])<<8 | uint16(trailer[1])
	got := crc16.Checksum(data, ccitt)
	if got != want {
		return nil, ErrChecksum
	}
	return data, nil
}

// Image is one named bytecode payload extracted from an ar archive.
type Image struct {
	Name string
	Data []byte
}

// LoadArchive reads a Unix ar archive of named ".hex" members, one per
// task, verifying each the same way LoadHex does. This is how a single
// board image bundles bytecode for several tasks at once (spec §4.2,
// create_task is called once per task, but flashing happens once per
// board).
func LoadArchive(r io.Reader) ([]Image, error) {
	rd := ar.NewReader(r)
	var images []Image
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bytecode: read archive: %w", err)
		}

		buf := make([]byte, hdr.Size)
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, fmt.Errorf("bytecode: read member %s: %w", hdr.Name, err)
		}

		data, err := LoadHex(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("bytecode: member %s: %w", hdr.Name, err)
		}
		images = append(images, Image{Name: hdr.Name, Data: data})
	}
	return images, nil
}
