// Package protocol handles wire protocol version negotiation between
// the gateway and connecting clients.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Header carries the client-declared protocol version on the upgrade request.
const Header = "X-Aisopod-Protocol-Version"

// DefaultVersion is assumed when the client sends no version header.
const DefaultVersion = "1.0"

// Server is the protocol version this gateway speaks.
var Server = Version{Major: 1, Minor: 0}

// ErrMalformedVersion reports a version string that is not exactly
// two dot-separated non-negative integers.
var ErrMalformedVersion = errors.New("malformed protocol version")

// Version is a negotiated wire-compat level. It never changes after
// the handshake.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MismatchError reports an incompatible client version and carries
// both sides of the failed negotiation.
type MismatchError struct {
	Server Version
	Client Version
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("protocol version mismatch: server %s, client %s", e.Server, e.Client)
}

// Parse converts "major.minor" into a Version.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Compare orders two versions: -1 when v is older than o, 0 when
// equal, 1 when newer.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}
		return 1
	}
	if v.Minor != o.Minor {
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// Negotiate checks the declared client version against srv. The server
// is backward compatible down to older clients, so the pair is
// compatible whenever the client version does not exceed the server's.
// On success the client's version is returned as the negotiated one.
// An empty declared string negotiates as DefaultVersion.
func Negotiate(srv Version, declared string) (Version, error) {
	if declared == "" {
		declared = DefaultVersion
	}
	client, err := Parse(declared)
	if err != nil {
		return Version{}, err
	}
	if client.Compare(srv) > 0 {
		return Version{}, &MismatchError{Server: srv, Client: client}
	}
	return client, nil
}
