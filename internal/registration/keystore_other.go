//go:build !windows

package registration

import "errors"

// SystemKeyStore is only available on Windows.
func SystemKeyStore() (KeyStore, error) {
	return nil, errors.New("registry is not available on this platform")
}
