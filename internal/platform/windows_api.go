//go:build windows

package platform

import (
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	psapi                        = windows.NewLazySystemDLL("psapi.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procOpenProcess              = kernel32.NewProc("OpenProcess")
	procCloseHandle              = kernel32.NewProc("CloseHandle")
	procGetModuleFileNameExW     = psapi.NewProc("GetModuleFileNameExW")
)

// WindowsAPI implements WindowAPI for Windows platform
type WindowsAPI struct{}

// NewWindowsAPI creates a new Windows API instance
func NewWindowsAPI() *WindowsAPI {
	return &WindowsAPI{}
}

// NewWindowAPI creates a new WindowAPI instance for Windows
func NewWindowAPI() WindowAPI {
	return NewWindowsAPI()
}

// GetCurrentAppName gets the name of the currently active application
func (w *WindowsAPI) GetCurrentAppName() string {
	appInfo := w.GetCurrentAppInfo()
	if appInfo == nil {
		return ""
	}
	return appInfo.Name
}

// GetCurrentAppInfo gets detailed information about the currently active application
func (w *WindowsAPI) GetCurrentAppInfo() *AppInfo {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil
	}

	var processID uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&processID)))
	if processID == 0 {
		return nil
	}

	// Open process with PROCESS_QUERY_INFORMATION | PROCESS_VM_READ
	hProcess, _, _ := procOpenProcess.Call(0x0400|0x0010, 0, uintptr(processID))
	if hProcess == 0 {
		return nil
	}
	defer procCloseHandle.Call(hProcess)

	var buffer [windows.MAX_PATH]uint16
	ret, _, _ := procGetModuleFileNameExW.Call(hProcess, 0, uintptr(unsafe.Pointer(&buffer[0])), windows.MAX_PATH)
	if ret == 0 {
		return nil
	}

	exePath := windows.UTF16ToString(buffer[:])
	if exePath == "" {
		return nil
	}

	// Extract just the filename without extension
	filename := filepath.Base(exePath)
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	return &AppInfo{
		Name:    name,
		ExePath: exePath,
	}
}
