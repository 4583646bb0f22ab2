// Package auth provides a high-level API for persisting and retrieving per-site credentials from the system keyring.
package auth

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const service = "strelay"

// Set persists credentials for a site to the system keyring.
func Set(site, user, password string) error {
	if strings.ContainsRune(user, '\n') {
		return fmt.Errorf("invalid username for %s", site)
	}
	return keyring.Set(service, site, user+"\n"+password)
}

// Get retrieves credentials for a site from the system keyring.
func Get(site string) (user, password string, err error) {
	secret, err := keyring.Get(service, site)
	if err != nil {
		return "", "", err
	}

	user, password, ok := strings.Cut(secret, "\n")
	if !ok {
		return "", "", fmt.Errorf("malformed keyring entry for %s", site)
	}
	return user, password, nil
}

// Delete removes the credentials stored for a site.
func Delete(site string) error {
	return keyring.Delete(service, site)
}

// ErrNotFound reports whether the error means no credentials are stored.
func ErrNotFound(err error) bool {
	return err == keyring.ErrNotFound
}
