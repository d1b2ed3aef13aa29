package validate

import (
	"strconv"
	"strings"
)

// Cookie is a browser cookie passed through to the capture engine.
// Cookies are never persisted; they only transit to the worker.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// containsControlChars reports whether a string carries control
// characters or CR/LF header-injection sequences.
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// validateCookies applies the strict cookie schema: no control
// characters or injection sequences in name/value/domain/path.
func validateCookies(cookies []Cookie, errs *Errors) {
	for i, c := range cookies {
		field := func(name string) string {
			return "cookies[" + strconv.Itoa(i) + "]." + name
		}
		if strings.TrimSpace(c.Name) == "" {
			errs.add(field("name"), "cookie name is required")
		}
		if containsControlChars(c.Name) || strings.ContainsAny(c.Name, ";=") {
			errs.add(field("name"), "cookie name contains forbidden characters")
		}
		if containsControlChars(c.Value) || strings.Contains(c.Value, ";") {
			errs.add(field("value"), "cookie value contains forbidden characters")
		}
		if containsControlChars(c.Domain) {
			errs.add(field("domain"), "cookie domain contains forbidden characters")
		}
		if containsControlChars(c.Path) {
			errs.add(field("path"), "cookie path contains forbidden characters")
		}
		if c.SameSite != "" {
			switch strings.ToLower(c.SameSite) {
			case "strict", "lax", "none":
			default:
				errs.add(field("sameSite"), "must be one of strict, lax, none")
			}
		}
	}
}

// validateHeaders checks the flat string->string header map for
// injection sequences.
func validateHeaders(headers map[string]string, errs *Errors) {
	for name, value := range headers {
		if strings.TrimSpace(name) == "" {
			errs.add("headers", "header name is required")
			continue
		}
		if containsControlChars(name) || containsControlChars(value) {
			errs.add("headers."+name, "header contains forbidden characters")
		}
	}
}
