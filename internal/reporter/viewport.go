package reporter

// Device classes reported in Viewport Info.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

const (
	mobileMaxWidth = 768
	tabletMaxWidth = 1024
)

// Viewport is the inner window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClassifyDevice maps a viewport width to a device class.
func ClassifyDevice(width int) string {
	switch {
	case width <= mobileMaxWidth:
		return DeviceMobile
	case width <= tabletMaxWidth:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// ScrollMetrics is the document geometry sampled on a scroll.
type ScrollMetrics struct {
	ScrollTop      float64 `json:"scroll_top"`
	ScrollHeight   float64 `json:"scroll_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// ErrorReport describes an uncaught page error.
type ErrorReport struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
}
