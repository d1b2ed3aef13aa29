package validate

import (
	"strings"
)

// Screenshot option bounds.
const (
	MinViewportWidth  = 320
	MaxViewportWidth  = 3840
	MinViewportHeight = 240
	MaxViewportHeight = 2160
	MinDeviceScale    = 1
	MaxDeviceScale    = 3
	MinQuality        = 1
	MaxQuality        = 100
	MinTimeoutMs      = 1000
	MaxTimeoutMs      = 60000
	MinPriority       = 1
	MaxPriority       = 10
	DefaultPriority   = 5
)

var screenshotFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"webp": true,
}

var blockableResources = map[string]bool{
	"image":      true,
	"stylesheet": true,
	"font":       true,
	"script":     true,
	"media":      true,
}

var waitStrategies = map[string]bool{
	"load":             true,
	"domcontentloaded": true,
	"networkidle0":     true,
	"networkidle2":     true,
}

// Viewport is the browser viewport configuration.
type Viewport struct {
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	DeviceScale float64 `json:"deviceScale,omitempty"`
}

// Clip is a capture sub-region.
type Clip struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScrollPosition scrolls the page before capture. Mutually exclusive
// with fullPage.
type ScrollPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ScreenshotRequest is the create-screenshot payload. Cookies and
// Headers transit to the worker only; they are stripped before any
// persistence.
type ScreenshotRequest struct {
	URL            string            `json:"url"`
	Format         string            `json:"format,omitempty"`
	Quality        int               `json:"quality,omitempty"`
	FullPage       bool              `json:"fullPage,omitempty"`
	ScrollPosition *ScrollPosition   `json:"scrollPosition,omitempty"`
	Viewport       *Viewport         `json:"viewport,omitempty"`
	Clip           *Clip             `json:"clip,omitempty"`
	BlockResources []string          `json:"blockResources,omitempty"`
	WaitUntil      string            `json:"waitUntil,omitempty"`
	TimeoutMs      int               `json:"timeout,omitempty"`
	Cookies        []Cookie          `json:"cookies,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Async          bool              `json:"async,omitempty"`
	NoStore        bool              `json:"noStore,omitempty"`
	Priority       int               `json:"priority,omitempty"`
	WebhookURL     string            `json:"webhookUrl,omitempty"`
}

// ValidateScreenshot checks a screenshot request against the schema
// and fills in defaults. Returns Errors on failure.
func ValidateScreenshot(req *ScreenshotRequest) error {
	var errs Errors

	if err := ValidateTargetURL(req.URL); err != nil {
		errs.add("url", "%s", err.Error())
	}

	if req.Format == "" {
		req.Format = "png"
	}
	req.Format = strings.ToLower(req.Format)
	if !screenshotFormats[req.Format] {
		errs.add("format", "must be one of png, jpeg, webp")
	}

	if req.Quality != 0 && (req.Quality < MinQuality || req.Quality > MaxQuality) {
		errs.add("quality", "must be between %d and %d", MinQuality, MaxQuality)
	}

	if req.Viewport != nil {
		v := req.Viewport
		if v.Width != 0 && (v.Width < MinViewportWidth || v.Width > MaxViewportWidth) {
			errs.add("viewport.width", "must be between %d and %d", MinViewportWidth, MaxViewportWidth)
		}
		if v.Height != 0 && (v.Height < MinViewportHeight || v.Height > MaxViewportHeight) {
			errs.add("viewport.height", "must be between %d and %d", MinViewportHeight, MaxViewportHeight)
		}
		if v.DeviceScale != 0 && (v.DeviceScale < MinDeviceScale || v.DeviceScale > MaxDeviceScale) {
			errs.add("viewport.deviceScale", "must be between %d and %d", MinDeviceScale, MaxDeviceScale)
		}
	}

	if req.Clip != nil {
		c := req.Clip
		if c.X < 0 || c.Y < 0 {
			errs.add("clip", "origin must be non-negative")
		}
		if c.Width <= 0 || c.Height <= 0 {
			errs.add("clip", "extents must be positive")
		}
	}

	if req.FullPage && req.ScrollPosition != nil {
		errs.add("fullPage", "fullPage and scrollPosition are mutually exclusive")
	}

	for _, res := range req.BlockResources {
		if !blockableResources[strings.ToLower(res)] {
			errs.add("blockResources", "unknown resource type %q", res)
		}
	}

	if req.WaitUntil != "" && !waitStrategies[strings.ToLower(req.WaitUntil)] {
		errs.add("waitUntil", "must be one of load, domcontentloaded, networkidle0, networkidle2")
	}

	if req.TimeoutMs != 0 && (req.TimeoutMs < MinTimeoutMs || req.TimeoutMs > MaxTimeoutMs) {
		errs.add("timeout", "must be between %d and %d ms", MinTimeoutMs, MaxTimeoutMs)
	}

	validateCookies(req.Cookies, &errs)
	validateHeaders(req.Headers, &errs)

	// Asynchronous delivery requires a status record to poll.
	if req.Async && req.NoStore {
		errs.add("noStore", "noStore cannot be combined with async")
	}

	if req.Priority == 0 {
		req.Priority = DefaultPriority
	}
	if req.Priority < MinPriority || req.Priority > MaxPriority {
		errs.add("priority", "must be between %d and %d", MinPriority, MaxPriority)
	}

	if req.WebhookURL != "" {
		if err := ValidateTargetURL(req.WebhookURL); err != nil {
			errs.add("webhookUrl", "%s", err.Error())
		}
	}

	return errs.OrNil()
}
