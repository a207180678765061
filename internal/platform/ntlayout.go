package platform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// This file decodes the native Windows structures the Windows loader reads,
// from raw byte buffers into owned, validated Go values. Nothing outside it
// interprets offsets or foreign pointers. Offsets are for 64-bit Windows.
//
// It has no build constraint so the decoding is tested on every platform.

// SYSTEM_PROCESS_INFORMATION offsets.
const (
	spiNextEntryOffset       = 0x00
	spiNumberOfThreads       = 0x04
	spiWorkingSetPrivateSize = 0x08
	spiUserTime              = 0x28
	spiKernelTime            = 0x30
	spiImageName             = 0x38
	spiUniqueProcessID       = 0x50
	spiHandleCount           = 0x60
	// spiMinSize covers every field read above.
	spiMinSize = 0x68
)

// SYSTEM_MEMORY_LIST_INFORMATION offsets. Every count is a ULONG_PTR.
const (
	smliZeroPageCount       = 0x00
	smliFreePageCount       = 0x08
	smliModifiedPageCount   = 0x10
	smliPageCountByPriority = 0x28
	smliPriorityLevels      = 8
	smliSize                = 0xB0
)

// PEB and RTL_USER_PROCESS_PARAMETERS offsets.
const (
	pebProcessParameters = 0x20
	pebMinSize           = pebProcessParameters + 8

	rupImagePathName = 0x60
	rupCommandLine   = 0x70
	rupMinSize       = rupCommandLine + unicodeStringSize
)

// unicodeStringSize is sizeof(UNICODE_STRING): two USHORTs, padding, a pointer.
const unicodeStringSize = 16

var errShortBuffer = errors.New("ntlayout: buffer too short")

// unicodeString is a decoded UNICODE_STRING header. Buffer is an address in
// whatever address space the structure was read from.
type unicodeString struct {
	Length uint16
	Buffer uint64
}

func readUnicodeString(b []byte, off int) (unicodeString, error) {
	if off < 0 || off+unicodeStringSize > len(b) {
		return unicodeString{}, errShortBuffer
	}
	return unicodeString{
		Length: binary.LittleEndian.Uint16(b[off:]),
		Buffer: binary.LittleEndian.Uint64(b[off+8:]),
	}, nil
}

// processRecord is one decoded SYSTEM_PROCESS_INFORMATION entry.
type processRecord struct {
	PID               uint32
	ImageName         string
	Threads           uint32
	Handles           uint32
	PrivateWorkingSet uint64
	// UserTime and KernelTime are in 100ns units.
	UserTime   uint64
	KernelTime uint64
}

// parseProcessRecords walks the NextEntryOffset chain of a
// SystemProcessInformation query result. base is the address buf was
// mapped at when the kernel filled it; image name pointers are resolved
// relative to it and must stay inside buf.
func parseProcessRecords(buf []byte, base uint64) ([]processRecord, error) {
	var records []processRecord
	offset := 0
	for {
		if offset+spiMinSize > len(buf) {
			return nil, fmt.Errorf("process record at offset %d: %w", offset, errShortBuffer)
		}
		entry := buf[offset:]

		rec := processRecord{
			PID:               uint32(binary.LittleEndian.Uint64(entry[spiUniqueProcessID:])),
			Threads:           binary.LittleEndian.Uint32(entry[spiNumberOfThreads:]),
			Handles:           binary.LittleEndian.Uint32(entry[spiHandleCount:]),
			PrivateWorkingSet: binary.LittleEndian.Uint64(entry[spiWorkingSetPrivateSize:]),
			UserTime:          binary.LittleEndian.Uint64(entry[spiUserTime:]),
			KernelTime:        binary.LittleEndian.Uint64(entry[spiKernelTime:]),
		}

		name, err := readUnicodeString(entry, spiImageName)
		if err != nil {
			return nil, err
		}
		if name.Length > 0 && name.Buffer != 0 {
			raw, err := sliceAt(buf, base, name.Buffer, int(name.Length))
			if err != nil {
				return nil, fmt.Errorf("image name of pid %d: %w", rec.PID, err)
			}
			if rec.ImageName, err = decodeUTF16(raw); err != nil {
				return nil, fmt.Errorf("image name of pid %d: %w", rec.PID, err)
			}
		}
		records = append(records, rec)

		next := int(binary.LittleEndian.Uint32(entry[spiNextEntryOffset:]))
		if next == 0 {
			return records, nil
		}
		offset += next
	}
}

// sliceAt returns the n bytes at address addr inside buf, which starts at base.
func sliceAt(buf []byte, base, addr uint64, n int) ([]byte, error) {
	if addr < base {
		return nil, fmt.Errorf("address %#x below buffer %#x", addr, base)
	}
	off := addr - base
	if off > uint64(len(buf)) || uint64(n) > uint64(len(buf))-off {
		return nil, fmt.Errorf("address %#x+%d outside buffer: %w", addr, n, errShortBuffer)
	}
	return buf[off : off+uint64(n)], nil
}

// memoryLists holds SYSTEM_MEMORY_LIST_INFORMATION page counts.
type memoryLists struct {
	ZeroPages     uint64
	FreePages     uint64
	ModifiedPages uint64
	// StandbyPages is the sum over every standby priority.
	StandbyPages uint64
}

func parseMemoryLists(buf []byte) (memoryLists, error) {
	var m memoryLists
	if len(buf) < smliSize {
		return m, errShortBuffer
	}
	m.ZeroPages = binary.LittleEndian.Uint64(buf[smliZeroPageCount:])
	m.FreePages = binary.LittleEndian.Uint64(buf[smliFreePageCount:])
	m.ModifiedPages = binary.LittleEndian.Uint64(buf[smliModifiedPageCount:])
	for i := 0; i < smliPriorityLevels; i++ {
		m.StandbyPages += binary.LittleEndian.Uint64(buf[smliPageCountByPriority+8*i:])
	}
	return m, nil
}

// parsePEB returns the ProcessParameters address from a PEB read out of
// another process.
func parsePEB(buf []byte) (uint64, error) {
	if len(buf) < pebMinSize {
		return 0, errShortBuffer
	}
	addr := binary.LittleEndian.Uint64(buf[pebProcessParameters:])
	if addr == 0 {
		return 0, errors.New("ntlayout: process has no parameters block")
	}
	return addr, nil
}

// parseProcessParameters returns the image path and command line headers
// from an RTL_USER_PROCESS_PARAMETERS block.
func parseProcessParameters(buf []byte) (imagePath, commandLine unicodeString, err error) {
	if len(buf) < rupMinSize {
		return imagePath, commandLine, errShortBuffer
	}
	if imagePath, err = readUnicodeString(buf, rupImagePathName); err != nil {
		return imagePath, commandLine, err
	}
	commandLine, err = readUnicodeString(buf, rupCommandLine)
	return imagePath, commandLine, err
}

// decodeUTF16 converts little-endian UTF-16 to a string, dropping any
// trailing NUL terminators.
func decodeUTF16(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\x00"), nil
}

// filetimeTicks joins the halves of a FILETIME into 100ns ticks.
func filetimeTicks(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}
