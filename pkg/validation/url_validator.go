package validation

import (
	"net"
	"net/url"
	"path"
	"strings"

	apperrors "github.com/anime-shed/image-analyser-go/internal/errors"
)

// maxFileNameLength matches the object name limit of GCS and S3
const maxFileNameLength = 1024

// DefaultURLFileName is used when a URL has no usable last path segment
const DefaultURLFileName = "image"

// URLValidator checks image URLs before they are fetched
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
	allowPrivate   bool
}

// NewURLValidator allows http and https to any public host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options.
// Hosts listed explicitly are trusted even when they are private addresses.
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
		allowPrivate:   len(hosts) > 0,
	}
}

// ValidateImageURL validates if the provided URL is acceptable for fetching
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	host := parsedURL.Hostname()
	if host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if len(v.allowedHosts) > 0 && !v.isHostAllowed(host) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	if !v.allowPrivate && isPrivateHost(host) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// ValidateFileName checks a client supplied name before it is used as an
// object name.
func ValidateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperrors.NewValidationError("file name cannot be empty", nil)
	case len(name) > maxFileNameLength:
		return apperrors.NewValidationError("file name too long", nil)
	case strings.ContainsAny(name, "/\\"):
		return apperrors.NewValidationError("file name must not contain path separators", nil)
	case name == "." || name == "..":
		return apperrors.NewValidationError("invalid file name", nil)
	}
	return nil
}

// FileNameFromURL returns the last path segment of rawURL, or
// DefaultURLFileName for host-only and unparseable URLs.
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultURLFileName
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return DefaultURLFileName
	}
	return name
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// isPrivateHost only looks at the literal host. Names are not resolved.
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
