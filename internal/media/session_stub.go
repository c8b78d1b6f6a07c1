//go:build !linux

package media

import "github.com/cockroachdb/errors"

// NewSession is the fallback for platforms without desktop integration.
func NewSession() (Session, error) {
	return nil, errors.New("media session not supported on this platform")
}
