package projectctx

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// githubBlobPattern matches GitHub blob or tree URLs.
// Format: https://github.com/{owner}/{repo}/{blob|tree}/{ref}/{path...}
var githubBlobPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/(blob|tree)/([^/]+)(?:/(.*))?$`)

// ConvertToRawURL rewrites a GitHub blob URL to its raw content URL so the
// document body can be fetched directly. URLs that are already raw, or that
// do not point at github.com, are returned unchanged.
func ConvertToRawURL(docURL string) string {
	parsed, err := url.Parse(docURL)
	if err != nil {
		return docURL
	}

	if parsed.Host == "raw.githubusercontent.com" {
		return docURL
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return docURL
	}

	matches := githubBlobPattern.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return docURL
	}

	owner := matches[1]
	repo := matches[2]
	// matches[3] is "blob" or "tree"
	ref := matches[4]
	path := matches[5]

	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/refs/heads/%s/%s", owner, repo, ref, path)
}

// ValidateContextURL checks that a remote context document URL uses an
// allowed scheme and, when an allowlist is configured, an allowed domain.
func ValidateContextURL(docURL string, allowedDomains []string) error {
	parsed, err := url.Parse(docURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only http and https allowed", parsed.Scheme)
	}

	if len(allowedDomains) > 0 {
		host := strings.ToLower(parsed.Hostname())
		allowed := false
		for _, domain := range allowedDomains {
			if host == domain || host == "www."+domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("domain %q not in allowed list", host)
		}
	}

	return nil
}
