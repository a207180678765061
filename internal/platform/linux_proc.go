package platform

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opd-ai/go-taskmon/internal/sysinfo"
)

// Constants for parsing /proc/[pid]/stat fields.
// The field indices are relative to the fields after the command name (comm).
// Field numbers in comments are from the proc(5) man page.
const (
	// statMinFields is the minimum number of fields required after comm.
	statMinFields = 18
	// statFieldState is the process state (field 3 in proc(5)).
	statFieldState = 0
	// statFieldUtime is user mode CPU time in clock ticks (field 14).
	statFieldUtime = 11
	// statFieldStime is kernel mode CPU time in clock ticks (field 15).
	statFieldStime = 12
	// statFieldNumThreads is the number of threads (field 20).
	statFieldNumThreads = 17
)

// procStat holds the fields of /proc/[pid]/stat the loader uses.
type procStat struct {
	state   string
	utime   uint64
	stime   uint64
	threads int
}

// parseProcStat parses /proc/[pid]/stat content.
// The format is: pid (comm) state ppid pgrp session tty_nr tpgid flags
// minflt cminflt majflt cmajflt utime stime cutime cstime priority nice
// num_threads ...
//
// comm may itself contain spaces and parentheses, so fields are counted
// from the last closing parenthesis.
func parseProcStat(content string) (procStat, error) {
	var st procStat

	closeParen := strings.LastIndexByte(content, ')')
	if closeParen == -1 || strings.IndexByte(content, '(') > closeParen {
		return st, fmt.Errorf("invalid stat format: missing parentheses")
	}

	fields := strings.Fields(content[closeParen+1:])
	if len(fields) < statMinFields {
		return st, fmt.Errorf("invalid stat format: not enough fields (got %d, need %d)", len(fields), statMinFields)
	}

	st.state = fields[statFieldState]

	var err error
	if st.utime, err = strconv.ParseUint(fields[statFieldUtime], 10, 64); err != nil {
		return st, fmt.Errorf("parsing utime: %w", err)
	}
	if st.stime, err = strconv.ParseUint(fields[statFieldStime], 10, 64); err != nil {
		return st, fmt.Errorf("parsing stime: %w", err)
	}
	if st.threads, err = strconv.Atoi(fields[statFieldNumThreads]); err != nil {
		return st, fmt.Errorf("parsing num_threads: %w", err)
	}
	return st, nil
}

// parseState maps a stat state code to a Status.
func parseState(code string) sysinfo.Status {
	switch strings.ToUpper(code) {
	case "D":
		return sysinfo.StatusWaiting
	case "Z":
		return sysinfo.StatusZombie
	case "T":
		return sysinfo.StatusSuspended
	case "X":
		return sysinfo.StatusDead
	default:
		return sysinfo.StatusRunning
	}
}

// readKeyValueFile reads a colon-delimited key:value file such as
// /proc/[pid]/status. Lines without a colon are skipped.
func readKeyValueFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseKeyValue(string(data)), nil
}

func parseKeyValue(content string) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values
}

// parseKB parses a "<n> kB" value and converts it to bytes.
// A missing or malformed value yields 0.
func parseKB(value string) uint64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	return parseUint64(fields[0]) * 1024
}

// firstField returns the first whitespace-delimited token of s.
func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// readCommandLine reads /proc/[pid]/cmdline and joins its NUL-separated
// arguments with spaces.
func readCommandLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytes.ReplaceAll(data, []byte{0}, []byte{' '}))), nil
}

// readTotalTicks sums every counter on the first line of /proc/stat.
func readTotalTicks(procRoot string) (uint64, error) {
	file, err := os.Open(filepath.Join(procRoot, "stat"))
	if err != nil {
		return 0, fmt.Errorf("opening %s/stat: %w", procRoot, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("scanning %s/stat: %w", procRoot, err)
		}
		return 0, fmt.Errorf("%s/stat is empty", procRoot)
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, fmt.Errorf("invalid cpu line format")
	}

	var total uint64
	for _, field := range fields[1:] {
		val, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		total += val
	}
	return total, nil
}

// readFileNr reads /proc/sys/fs/file-nr: "<allocated> <free> <max>".
func readFileNr(procRoot string) (used, limit uint64, err error) {
	content, ok := readStringFile(filepath.Join(procRoot, "sys", "fs", "file-nr"))
	if !ok {
		return 0, 0, fmt.Errorf("reading %s/sys/fs/file-nr", procRoot)
	}
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("unexpected file-nr format: %q", content)
	}
	return parseUint64(fields[0]), parseUint64(fields[2]), nil
}

// memInfo holds the /proc/meminfo values the Linux extras need, in bytes.
type memInfo struct {
	shmem     uint64
	swapTotal uint64
	swapFree  uint64
}

// parseMemInfo parses the content of /proc/meminfo.
func parseMemInfo(content string) memInfo {
	var info memInfo
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		// Values in /proc/meminfo are in KB, convert to bytes
		value *= 1024

		switch strings.TrimSuffix(fields[0], ":") {
		case "Shmem":
			info.shmem = value
		case "SwapTotal":
			info.swapTotal = value
		case "SwapFree":
			info.swapFree = value
		}
	}
	return info
}

// listPIDs returns the numeric entries of the process root.
func listPIDs(procRoot string) ([]uint32, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", procRoot, err)
	}

	pids := make([]uint32, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			// Not a PID directory
			continue
		}
		pids = append(pids, uint32(pid))
	}
	return pids, nil
}
