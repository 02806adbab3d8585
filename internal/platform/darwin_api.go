//go:build darwin

package platform

// DarwinAPI implements WindowAPI for macOS platform
type DarwinAPI struct{}

// NewDarwinAPI creates a new macOS API instance
func NewDarwinAPI() *DarwinAPI {
	return &DarwinAPI{}
}

// NewWindowAPI creates a new WindowAPI instance for macOS
func NewWindowAPI() WindowAPI {
	return NewDarwinAPI()
}

// GetCurrentAppName gets the name of the currently active application on macOS
func (d *DarwinAPI) GetCurrentAppName() string {
	return ""
}

// GetCurrentAppInfo gets detailed information about the currently active application on macOS
func (d *DarwinAPI) GetCurrentAppInfo() *AppInfo {
	return nil
}
