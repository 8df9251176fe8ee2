package network

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"meshkv/internal/meshaddr"
)

// AddressBook resolves a meshaddr.Address to a dialable "host:port" string,
// since Address itself only carries an opaque 4-byte id plus a port.
type AddressBook struct {
	mu      sync.RWMutex
	dialers map[meshaddr.Address]string
}

func NewAddressBook() *AddressBook {
	return &AddressBook{dialers: make(map[meshaddr.Address]string)}
}

func (b *AddressBook) Register(addr meshaddr.Address, dial string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialers[addr] = dial
}

func (b *AddressBook) Lookup(addr meshaddr.Address) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.dialers[addr]
	return d, ok
}

// HTTPTransport sends frames to other real processes over HTTP POST,
// grounded on the teacher's replication.Replicator.replicateToNode, which
// POSTs a JSON envelope to a peer's /internal/replicate endpoint and
// tolerates failure by simply not counting that peer toward quorum. Here
// the body is the raw wire frame, not JSON — this transport must carry
// exactly the bytes internal/wire produces.
//
// HTTPTransport implements the same fire-and-forget Sender interface as
// Emulator: a failed POST is swallowed, exactly like a dropped packet,
// because spec section 6 defines Send as never returning a delivery error.
type HTTPTransport struct {
	Addresses *AddressBook
	Client    *http.Client
	Path      string
}

// NewHTTPTransport creates a transport posting frames to path (default
// "/mesh/recv") on each peer's registered dial address.
func NewHTTPTransport(addresses *AddressBook, path string) *HTTPTransport {
	if path == "" {
		path = "/mesh/recv"
	}
	return &HTTPTransport{
		Addresses: addresses,
		Client:    &http.Client{Timeout: 2 * time.Second},
		Path:      path,
	}
}

// FromHeader carries the sender's address (hex-encoded) alongside the raw
// wire body, since the body itself never names its own sender.
const FromHeader = "X-Meshkv-From"

func (t *HTTPTransport) Send(from, to meshaddr.Address, data []byte) {
	dial, ok := t.Addresses.Lookup(to)
	if !ok {
		return
	}
	url := fmt.Sprintf("http://%s%s", dial, t.Path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(FromHeader, from.Hex())
	resp, err := t.Client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
