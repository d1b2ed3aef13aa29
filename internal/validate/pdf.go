package validate

import (
	"regexp"
	"strings"

	"github.com/snapdock/snapdock-api/internal/models"
)

// PDF option bounds.
const (
	MinPDFScale = 0.1
	MaxPDFScale = 2.0
)

var pdfFormats = map[string]bool{
	"Letter":  true,
	"Legal":   true,
	"Tabloid": true,
	"Ledger":  true,
	"A0":      true,
	"A1":      true,
	"A2":      true,
	"A3":      true,
	"A4":      true,
	"A5":      true,
	"A6":      true,
}

// cssLengthRe matches margin/width/height strings like "10px", "1in".
var cssLengthRe = regexp.MustCompile(`^\d+(px|in|cm|mm)$`)

// PDFSource is the tagged union over a URL target and an inline HTML
// fragment. Exactly one arm is set.
type PDFSource struct {
	Kind models.SourceKind
	URL  string
	HTML string
}

// PDFMargins are per-edge margin strings ("10px", "1cm", ...).
type PDFMargins struct {
	Top    string `json:"top,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
}

// PDFRequest is the create-pdf payload. The source is discriminated by
// the "type" field: "url" with url set, or "html" with html set. HTML
// content transits to the worker only and is never persisted.
type PDFRequest struct {
	Type            string            `json:"type"`
	URL             string            `json:"url,omitempty"`
	HTML            string            `json:"html,omitempty"`
	Format          string            `json:"format,omitempty"`
	Scale           float64           `json:"scale,omitempty"`
	Landscape       bool              `json:"landscape,omitempty"`
	PrintBackground bool              `json:"printBackground,omitempty"`
	Margins         *PDFMargins       `json:"margins,omitempty"`
	Width           string            `json:"width,omitempty"`
	Height          string            `json:"height,omitempty"`
	HeaderTemplate  string            `json:"headerTemplate,omitempty"`
	FooterTemplate  string            `json:"footerTemplate,omitempty"`
	WaitUntil       string            `json:"waitUntil,omitempty"`
	TimeoutMs       int               `json:"timeout,omitempty"`
	Cookies         []Cookie          `json:"cookies,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Async           bool              `json:"async,omitempty"`
	NoStore         bool              `json:"noStore,omitempty"`
	Priority        int               `json:"priority,omitempty"`
	WebhookURL      string            `json:"webhookUrl,omitempty"`
}

// HasTemplate reports whether the request uses header/footer templates,
// which carry the higher PDF_WITH_TEMPLATE credit cost.
func (r *PDFRequest) HasTemplate() bool {
	return r.HeaderTemplate != "" || r.FooterTemplate != ""
}

// ValidatePDF checks a PDF request against the schema, fills in
// defaults, and returns the resolved source union.
func ValidatePDF(req *PDFRequest) (PDFSource, error) {
	var errs Errors
	var source PDFSource

	switch strings.ToLower(req.Type) {
	case "url":
		source.Kind = models.SourceKindURL
		source.URL = req.URL
		if err := ValidateTargetURL(req.URL); err != nil {
			errs.add("url", "%s", err.Error())
		}
		if req.HTML != "" {
			errs.add("html", "html must not be set when type is url")
		}
	case "html":
		source.Kind = models.SourceKindHTML
		source.HTML = req.HTML
		if len(req.HTML) < 1 {
			errs.add("html", "html must be at least 1 character")
		}
		if req.URL != "" {
			errs.add("url", "url must not be set when type is html")
		}
	default:
		errs.add("type", "must be url or html")
	}

	if req.Format == "" {
		req.Format = "A4"
	}
	if !pdfFormats[req.Format] {
		errs.add("format", "must be one of Letter, Legal, Tabloid, Ledger, A0-A6")
	}

	if req.Scale != 0 && (req.Scale < MinPDFScale || req.Scale > MaxPDFScale) {
		errs.add("scale", "must be between %.1f and %.1f", MinPDFScale, MaxPDFScale)
	}

	if req.Margins != nil {
		m := req.Margins
		for field, val := range map[string]string{
			"margins.top":    m.Top,
			"margins.bottom": m.Bottom,
			"margins.left":   m.Left,
			"margins.right":  m.Right,
		} {
			if val != "" && !cssLengthRe.MatchString(val) {
				errs.add(field, "must match a CSS length like 10px, 1in, 2cm, 5mm")
			}
		}
	}

	if req.Width != "" && !cssLengthRe.MatchString(req.Width) {
		errs.add("width", "must match a CSS length like 10px, 1in, 2cm, 5mm")
	}
	if req.Height != "" && !cssLengthRe.MatchString(req.Height) {
		errs.add("height", "must match a CSS length like 10px, 1in, 2cm, 5mm")
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

	return source, errs.OrNil()
}

// ValidateListParams checks list pagination and sorting parameters.
func ValidateListParams(page, limit int, sortBy, sortOrder string) error {
	var errs Errors

	if page < 1 {
		errs.add("page", "must be at least 1")
	}
	if limit < 1 || limit > 100 {
		errs.add("limit", "must be between 1 and 100")
	}
	if sortBy != "" && sortBy != "created_at" && sortBy != "completed_at" {
		errs.add("sortBy", "must be created_at or completed_at")
	}
	if sortOrder != "" && sortOrder != "asc" && sortOrder != "desc" {
		errs.add("sortOrder", "must be asc or desc")
	}

	return errs.OrNil()
}
