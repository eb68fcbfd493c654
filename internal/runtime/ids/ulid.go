package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// DefaultDomain is the domain part of generated client addresses.
const DefaultDomain = "streamsearch.local"

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// IQ request identifiers are drawn from it.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewJID returns a unique client address of the form
// client-<ulid>@domain/<resource>. An empty domain uses DefaultDomain and an
// empty resource is left off.
func NewJID(domain, resource string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	jid := "client-" + strings.ToLower(CreateULID()) + "@" + domain
	if resource != "" {
		jid += "/" + resource
	}
	return jid
}
