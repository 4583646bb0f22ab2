package network

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/strelay-cli/strelay/filesystem"
)

// LoadCookiesFile reads a Netscape-format cookie jar from path and installs
// every unexpired cookie into the client's jar. The format is seven
// tab-separated fields per line: domain, include-subdomains, path, secure,
// expiry, name, value. Comment lines start with '#'; the HttpOnly convention
// prefix '#HttpOnly_' is honored.
func (c *Client) LoadCookiesFile(path string) error {
	content, err := filesystem.API().ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cookies file: %w", err)
	}

	now := time.Now()
	var loaded int

	for lineno, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			httpOnly = true
			line = strings.TrimPrefix(line, "#HttpOnly_")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return fmt.Errorf("malformed cookie on line %d", lineno+1)
		}

		domain := strings.TrimPrefix(fields[0], ".")
		secure := strings.EqualFold(fields[3], "TRUE")
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed expiry on line %d: %w", lineno+1, err)
		}

		cookie := &http.Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Path:     fields[2],
			Domain:   fields[0],
			Secure:   secure,
			HttpOnly: httpOnly,
		}
		if expiry > 0 {
			expires := time.Unix(expiry, 0)
			if expires.Before(now) {
				continue
			}
			cookie.Expires = expires
		}

		scheme := "http"
		if secure {
			scheme = "https"
		}
		c.jar.SetCookies(&url.URL{Scheme: scheme, Host: domain, Path: fields[2]}, []*http.Cookie{cookie})
		loaded++
	}

	return nil
}
