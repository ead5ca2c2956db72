package arena

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key identifies one artifact namespace: the output of one stage for one
// (revision, profile) pair. Profile carries the full profile fingerprint,
// not just its name, so two profiles that differ in any build-affecting
// field never share a namespace.
type Key struct {
	Revision string
	Profile  string
	Stage    string
}

// Hash returns the hex digest used as the record key and payload directory
// name.
func (k Key) Hash() string {
	h := sha256.New()
	h.Write([]byte(k.Revision))
	h.Write([]byte{0})
	h.Write([]byte(k.Profile))
	h.Write([]byte{0})
	h.Write([]byte(k.Stage))

	return hex.EncodeToString(h.Sum(nil))
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Revision, k.Profile, k.Stage)
}
