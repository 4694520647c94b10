// Package identifier implements DomainEncoder: normalizing a target
// (domain or IP literal) into the form DNS and HTTP lookups expect,
// including IDN to A-label (Punycode) conversion.
package identifier

import (
	"net"
	"strings"

	"golang.org/x/net/idna"

	"github.com/open-mpic/mpic-core-go/berrors"
)

// wildcardPrefix is preserved verbatim across encoding rather than
// being passed through the IDNA profile, which rejects the bare "*"
// label.
const wildcardPrefix = "*."

var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.Transitional(false),
)

// Encode normalizes target for DNS/HTTP use. IP literals (v4 or v6)
// are returned unchanged. A leading "*." wildcard marker is preserved
// and not itself encoded. Everything else is IDN-encoded label by
// label into A-label form.
//
// Encode returns a berrors.MPICError of type InputValidation if the
// target cannot be encoded; that failure is fatal to the enclosing
// check per spec.
func Encode(target string) (string, error) {
	if ip := net.ParseIP(target); ip != nil {
		return target, nil
	}

	rest := target
	prefix := ""
	if strings.HasPrefix(target, wildcardPrefix) {
		prefix = wildcardPrefix
		rest = target[len(wildcardPrefix):]
	}

	encoded, err := idnaProfile.ToASCII(rest)
	if err != nil {
		return "", berrors.InputValidationError("failed to IDN-encode target %q: %s", target, err)
	}
	return prefix + encoded, nil
}

// IsWildcard reports whether target carries the "*." wildcard marker,
// either before or after encoding (the marker is never touched by
// Encode so this check is valid either way).
func IsWildcard(target string) bool {
	return strings.HasPrefix(target, wildcardPrefix)
}

// TrimWildcard strips a leading "*." marker, if present, returning the
// bare domain portion.
func TrimWildcard(target string) string {
	return strings.TrimPrefix(target, wildcardPrefix)
}
