//go:build linux

package platform

// LinuxAPI implements WindowAPI for Linux platform
type LinuxAPI struct{}

// NewLinuxAPI creates a new Linux API instance
func NewLinuxAPI() *LinuxAPI {
	return &LinuxAPI{}
}

// NewWindowAPI creates a new WindowAPI instance for Linux
func NewWindowAPI() WindowAPI {
	return NewLinuxAPI()
}

// GetCurrentAppName gets the name of the currently active application on Linux
func (l *LinuxAPI) GetCurrentAppName() string {
	// TODO: Implement using X11 XGetInputFocus or the Wayland
	// wlr-foreign-toplevel-management protocol
	return ""
}

// GetCurrentAppInfo gets detailed information about the currently active application on Linux
func (l *LinuxAPI) GetCurrentAppInfo() *AppInfo {
	return nil
}
