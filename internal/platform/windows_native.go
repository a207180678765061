//go:build windows
// +build windows

package platform

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modKernel32                            = windows.NewLazySystemDLL("kernel32.dll")
	procGetPhysicallyInstalledSystemMemory = modKernel32.NewProc("GetPhysicallyInstalledSystemMemory")

	modPsapi               = windows.NewLazySystemDLL("psapi.dll")
	procGetPerformanceInfo = modPsapi.NewProc("GetPerformanceInfo")

	modAdvapi32      = windows.NewLazySystemDLL("advapi32.dll")
	procGetUserNameW = modAdvapi32.NewProc("GetUserNameW")
)

// systemMemoryListInformation is SYSTEM_INFORMATION_CLASS 80.
const systemMemoryListInformation = 80

// performanceInformation matches the Windows PERFORMANCE_INFORMATION structure.
// Memory figures are in pages.
type performanceInformation struct {
	cb                uint32
	CommitTotal       uintptr
	CommitLimit       uintptr
	CommitPeak        uintptr
	PhysicalTotal     uintptr
	PhysicalAvailable uintptr
	SystemCache       uintptr
	KernelTotal       uintptr
	KernelPaged       uintptr
	KernelNonpaged    uintptr
	PageSize          uintptr
	HandleCount       uint32
	ProcessCount      uint32
	ThreadCount       uint32
}

func getPerformanceInfo() (*performanceInformation, error) {
	var info performanceInformation
	info.cb = uint32(unsafe.Sizeof(info))

	ret, _, err := procGetPerformanceInfo.Call(uintptr(unsafe.Pointer(&info)), uintptr(info.cb))
	if ret == 0 {
		return nil, fmt.Errorf("GetPerformanceInfo failed: %w", err)
	}
	return &info, nil
}

// physicallyInstalledMemory returns the installed RAM in bytes.
func physicallyInstalledMemory() (uint64, error) {
	var kb uint64
	ret, _, err := procGetPhysicallyInstalledSystemMemory.Call(uintptr(unsafe.Pointer(&kb)))
	if ret == 0 {
		return 0, fmt.Errorf("GetPhysicallyInstalledSystemMemory failed: %w", err)
	}
	return kb * 1024, nil
}

func currentUserName() (string, error) {
	buf := make([]uint16, 257)
	size := uint32(len(buf))
	ret, _, err := procGetUserNameW.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return "", fmt.Errorf("GetUserNameW failed: %w", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}

// systemTimeTicks returns the current system time in 100ns units.
func systemTimeTicks() uint64 {
	var ft windows.Filetime
	windows.GetSystemTimeAsFileTime(&ft)
	return filetimeTicks(ft.HighDateTime, ft.LowDateTime)
}

// debugPrivilege holds the process token while SeDebugPrivilege is enabled,
// together with the privilege state it replaced.
type debugPrivilege struct {
	token    windows.Token
	previous windows.Tokenprivileges
}

// enableDebugPrivilege enables SeDebugPrivilege on the current process token
// so that other users' processes can be opened for reading. The returned
// handle must be released to restore the previous state.
func enableDebugPrivilege() (*debugPrivilege, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		return nil, fmt.Errorf("opening process token: %w", err)
	}

	luid, err := debugPrivilegeLUID()
	if err != nil {
		token.Close()
		return nil, err
	}

	privileges := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	d := &debugPrivilege{token: token}
	var returned uint32
	if err := windows.AdjustTokenPrivileges(token, false, &privileges, uint32(unsafe.Sizeof(d.previous)), &d.previous, &returned); err != nil {
		token.Close()
		return nil, fmt.Errorf("adjusting token privileges: %w", err)
	}
	return d, nil
}

// release puts the privilege back to the state it had before
// enableDebugPrivilege and closes the token. It is safe to call twice.
func (d *debugPrivilege) release() error {
	if d == nil || d.token == 0 {
		return nil
	}
	var err error
	// A zero count means the privilege was already enabled.
	if d.previous.PrivilegeCount > 0 {
		if e := windows.AdjustTokenPrivileges(d.token, false, &d.previous, 0, nil, nil); e != nil {
			err = fmt.Errorf("restoring token privileges: %w", e)
		}
	}
	if e := d.token.Close(); e != nil && err == nil {
		err = fmt.Errorf("closing process token: %w", e)
	}
	d.token = 0
	return err
}

func debugPrivilegeLUID() (windows.LUID, error) {
	var luid windows.LUID
	name, err := windows.UTF16PtrFromString("SeDebugPrivilege")
	if err != nil {
		return luid, err
	}
	if err := windows.LookupPrivilegeValue(nil, name, &luid); err != nil {
		return luid, fmt.Errorf("looking up SeDebugPrivilege: %w", err)
	}
	return luid, nil
}

// debugPrivilegeEnabled reports whether SeDebugPrivilege is currently
// enabled on the process token.
func debugPrivilegeEnabled() (bool, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY, &token); err != nil {
		return false, fmt.Errorf("opening process token: %w", err)
	}
	defer token.Close()

	luid, err := debugPrivilegeLUID()
	if err != nil {
		return false, err
	}
	var needed uint32
	_ = windows.GetTokenInformation(token, windows.TokenPrivileges, nil, 0, &needed)
	if needed == 0 {
		return false, errors.New("querying token privileges: empty result")
	}
	buf := make([]byte, needed)
	if err := windows.GetTokenInformation(token, windows.TokenPrivileges, &buf[0], needed, &needed); err != nil {
		return false, fmt.Errorf("querying token privileges: %w", err)
	}
	privs := (*windows.Tokenprivileges)(unsafe.Pointer(&buf[0]))
	for _, p := range privs.AllPrivileges() {
		if p.Luid == luid {
			return p.Attributes&windows.SE_PRIVILEGE_ENABLED != 0, nil
		}
	}
	return false, nil
}

// querySystemInformation runs NtQuerySystemInformation, growing buf until the
// result fits. It returns the filled prefix of the (possibly reallocated) buffer.
func querySystemInformation(class int32, buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		buf = make([]byte, 256*1024)
	}
	for attempt := 0; attempt < 8; attempt++ {
		var needed uint32
		err := windows.NtQuerySystemInformation(class, unsafe.Pointer(&buf[0]), uint32(len(buf)), &needed)
		switch {
		case err == nil:
			if needed == 0 || int(needed) > len(buf) {
				return buf, nil
			}
			return buf[:needed], nil
		case errors.Is(err, windows.STATUS_INFO_LENGTH_MISMATCH),
			errors.Is(err, windows.STATUS_BUFFER_TOO_SMALL),
			errors.Is(err, windows.STATUS_BUFFER_OVERFLOW):
			// The process list can grow between the two calls.
			size := int(needed) + int(needed)/8
			if size <= len(buf) {
				size = len(buf) * 2
			}
			buf = make([]byte, size)
		default:
			return nil, fmt.Errorf("NtQuerySystemInformation(%d): %w", class, err)
		}
	}
	return nil, fmt.Errorf("NtQuerySystemInformation(%d): buffer kept growing", class)
}

// bufferBase returns the address of the first byte of buf.
func bufferBase(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

// processIdentity is what the PEB chain and the access token yield.
type processIdentity struct {
	path        string
	commandLine string
	user        string
}

// readProcessIdentity follows process handle, basic information, PEB,
// process parameters and finally the image path and command line buffers.
func readProcessIdentity(pid uint32) (processIdentity, error) {
	var id processIdentity

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return id, fmt.Errorf("OpenProcess: %w", err)
	}
	defer windows.CloseHandle(handle)

	var basic windows.PROCESS_BASIC_INFORMATION
	if err := windows.NtQueryInformationProcess(handle, windows.ProcessBasicInformation,
		unsafe.Pointer(&basic), uint32(unsafe.Sizeof(basic)), nil); err != nil {
		return id, fmt.Errorf("NtQueryInformationProcess: %w", err)
	}

	peb, err := readRemote(handle, uint64(uintptr(unsafe.Pointer(basic.PebBaseAddress))), pebMinSize)
	if err != nil {
		return id, fmt.Errorf("reading PEB: %w", err)
	}
	paramsAddr, err := parsePEB(peb)
	if err != nil {
		return id, err
	}

	params, err := readRemote(handle, paramsAddr, rupMinSize)
	if err != nil {
		return id, fmt.Errorf("reading process parameters: %w", err)
	}
	imagePath, commandLine, err := parseProcessParameters(params)
	if err != nil {
		return id, err
	}

	if id.path, err = readRemoteString(handle, imagePath); err != nil {
		return id, fmt.Errorf("reading image path: %w", err)
	}
	if id.commandLine, err = readRemoteString(handle, commandLine); err != nil {
		return id, fmt.Errorf("reading command line: %w", err)
	}

	var token windows.Token
	if err := windows.OpenProcessToken(handle, windows.TOKEN_QUERY, &token); err != nil {
		return id, fmt.Errorf("opening process token: %w", err)
	}
	defer token.Close()

	user, err := token.GetTokenUser()
	if err != nil {
		return id, fmt.Errorf("reading token user: %w", err)
	}
	account, _, _, err := user.User.Sid.LookupAccount("")
	if err != nil {
		return id, fmt.Errorf("looking up token account: %w", err)
	}
	id.user = account
	return id, nil
}

func readRemote(handle windows.Handle, addr uint64, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if addr == 0 {
		return nil, errors.New("null address")
	}

	buf := make([]byte, size)
	var read uintptr
	if err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(size), &read); err != nil {
		return nil, err
	}
	if read != uintptr(size) {
		return nil, fmt.Errorf("read incomplete: expected %d, got %d", size, read)
	}
	return buf, nil
}

func readRemoteString(handle windows.Handle, s unicodeString) (string, error) {
	if s.Length == 0 {
		return "", nil
	}
	raw, err := readRemote(handle, s.Buffer, int(s.Length))
	if err != nil {
		return "", err
	}
	return decodeUTF16(raw)
}

// readFileDescription returns the FileDescription version resource of the
// executable at path, using its first translation.
func readFileDescription(path string) (string, error) {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return "", fmt.Errorf("GetFileVersionInfoSize: %w", err)
	}
	info := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&info[0])); err != nil {
		return "", fmt.Errorf("GetFileVersionInfo: %w", err)
	}

	var translation *struct{ Language, CodePage uint16 }
	var length uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), `\VarFileInfo\Translation`,
		unsafe.Pointer(&translation), &length); err != nil || length < 4 {
		return "", fmt.Errorf("VerQueryValue translations: %w", err)
	}

	query := fmt.Sprintf(`\StringFileInfo\%04X%04X\FileDescription`, translation.Language, translation.CodePage)
	var text *uint16
	if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), query, unsafe.Pointer(&text), &length); err != nil {
		return "", fmt.Errorf("VerQueryValue description: %w", err)
	}
	if length == 0 {
		return "", nil
	}
	return strings.TrimSpace(windows.UTF16PtrToString(text)), nil
}
