// Command meshkv runs a node of the gossip-membership, consistent-hash
// replicated key-value store described by internal/node.Node.
//
// Grounded on AryanBagade-dynamoDB's cmd/server/main.go: flag-based
// configuration, a Gin router wired over the node's collaborators, and
// graceful shutdown on SIGINT/SIGTERM. Two run modes are supported: "sim"
// (the default), which drives a whole simulated cluster inside this one
// process over an in-memory network.Emulator via internal/driver, and
// "http", which runs a single real node reachable from other meshkv
// processes over network.HTTPTransport. The API is served in both modes,
// always in front of the same internal/node.Node/internal/api contract.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"meshkv/internal/api"
	"meshkv/internal/driver"
	"meshkv/internal/eventlog"
	"meshkv/internal/membership"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/node"
	"meshkv/internal/ring"
	"meshkv/internal/store"

	"github.com/google/uuid"
)

func main() {
	mode := flag.String("mode", "sim", `run mode: "sim" (in-process simulated cluster) or "http" (one real node)`)
	listen := flag.String("listen", ":8080", "address the API server binds to")
	advertise := flag.String("advertise", "", `address other meshkv processes dial to reach this node (defaults to "localhost"+listen's port); http mode only`)
	nodeID := flag.String("node-id", "node-1", "unique label for this node, hashed into its wire address")
	port := flag.Int("port", 9000, "this node's wire-level port component")
	dataDir := flag.String("data-dir", "", "if set, back local storage with goleveldb at data-dir/node-id instead of memory")
	seed := flag.String("seed", "", `http mode only: introducer as "node-id@host:port"; empty means this node is the seed`)
	tFail := flag.Uint64("t-fail", membership.DefaultTFail, "T_FAIL: suspicion threshold in ticks (stored, not used by any membership decision)")
	tRemove := flag.Uint64("t-remove", membership.DefaultTRemove, "T_REMOVE: ticks of staleness before a member is evicted")
	tTxn := flag.Uint64("t-txn", 0, "T_TXN: ticks before an unresolved client transaction is failed (0 keeps the package default)")
	ringSize := flag.Uint("ring-size", 0, "RING_SIZE: the hash ring modulus (0 keeps the package default)")
	tickInterval := flag.Duration("tick-interval", time.Second, "wall-clock interval between simulated ticks")
	simNodes := flag.Int("sim-nodes", 5, "sim mode only: number of simulated nodes to run in this process")
	flag.Parse()

	if *ringSize > 0 {
		ring.Size = uint32(*ringSize)
	}

	switch *mode {
	case "sim":
		runSim(*simNodes, *listen, *tFail, *tRemove, *tTxn, *tickInterval)
	case "http":
		runHTTP(*nodeID, *port, *listen, *advertise, *dataDir, *seed, *tFail, *tRemove, *tTxn, *tickInterval)
	default:
		log.Fatalf("meshkv: unknown -mode %q, want \"sim\" or \"http\"", *mode)
	}
}

// runSim drives n simulated nodes inside this process over a deterministic
// network.Emulator, exposing the first node's status over HTTP so an
// operator can watch the cluster converge while the rest of the cluster
// runs entirely in memory.
func runSim(n int, listen string, tFail, tRemove, tTxn uint64, tickInterval time.Duration) {
	if n < 1 {
		log.Fatalf("meshkv: -sim-nodes must be at least 1, got %d", n)
	}

	net := network.NewEmulator(1)
	d := driver.New(net)

	seedAddr := idAddr(0, 9000)
	nodes := make([]*node.Node, n)
	for i := 0; i < n; i++ {
		self := idAddr(i, 9000+i)
		logger := eventlog.NewStdLogger(log.New(os.Stdout, fmt.Sprintf("[%s] ", self), log.LstdFlags))
		nd := node.New(self, uuidGeneration(), logger, net, store.NewMemory(), rand.New(rand.NewSource(int64(i)+1)))
		nd.Membership().SetTimeouts(orDefault(tRemove, membership.DefaultTRemove), orDefault(tFail, membership.DefaultTFail))
		if tTxn > 0 {
			nd.Coordinator().SetTTxn(tTxn)
		}
		d.Add(nd)
		nodes[i] = nd
	}
	for _, nd := range nodes {
		nd.Start(seedAddr)
	}

	mu := &sync.Mutex{}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			mu.Lock()
			d.Tick()
			mu.Unlock()
		}
	}()

	log.Printf("meshkv: simulating %d nodes, serving node 0's view on %s", n, listen)
	serve(listen, api.NewRouter(nodes[0], mu))
}

// runHTTP runs one real node reachable over network.HTTPTransport.
func runHTTP(nodeID string, port int, listen, advertise, dataDir, seed string, tFail, tRemove, tTxn uint64, tickInterval time.Duration) {
	self := idAddr32(fnvHash(nodeID), port)

	if advertise == "" {
		advertise = "localhost" + portSuffix(listen)
	}

	addresses := network.NewAddressBook()
	addresses.Register(self, advertise)

	var introducer meshaddr.Address
	if seed == "" {
		introducer = self
	} else {
		seedID, seedDial, ok := strings.Cut(seed, "@")
		if !ok {
			log.Fatalf(`meshkv: -seed must look like "node-id@host:port", got %q`, seed)
		}
		seedPort, err := strconv.Atoi(lastPortSegment(seedDial))
		if err != nil {
			log.Fatalf("meshkv: -seed address %q has no parseable port: %v", seedDial, err)
		}
		introducer = idAddr32(fnvHash(seedID), seedPort)
		addresses.Register(introducer, seedDial)
	}

	var s store.Store = store.NewMemory()
	if dataDir != "" {
		ldb, err := store.NewLevelDB(dataDir, nodeID)
		if err != nil {
			log.Fatalf("meshkv: %v", err)
		}
		defer ldb.Close()
		s = ldb
	}

	transport := network.NewHTTPTransport(addresses, "")
	logger := eventlog.NewStdLogger(log.New(os.Stdout, fmt.Sprintf("[%s] ", self), log.LstdFlags))
	n := node.New(self, uuidGeneration(), logger, transport, s, rand.New(rand.NewSource(time.Now().UnixNano())))
	n.Membership().SetTimeouts(orDefault(tRemove, membership.DefaultTRemove), orDefault(tFail, membership.DefaultTFail))
	if tTxn > 0 {
		n.Coordinator().SetTTxn(tTxn)
	}
	n.Start(introducer)

	mu := &sync.Mutex{}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			mu.Lock()
			n.Tick()
			mu.Unlock()
		}
	}()

	log.Printf("meshkv: node %s listening on %s (advertised as %s)", self, listen, advertise)
	serve(listen, api.NewRouter(n, mu))
}

// serve runs router until SIGINT/SIGTERM, then shuts down gracefully.
func serve(listen string, router http.Handler) {
	srv := &http.Server{Addr: listen, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("meshkv: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Print("meshkv: shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("meshkv: graceful shutdown failed: %v", err)
	}
}

func orDefault(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func idAddr32(id uint32, port int) meshaddr.Address {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return meshaddr.New(b, uint16(port))
}

// idAddr builds a simulation-only address for node index i, used by runSim
// where node identities are just small integers rather than hashed labels.
func idAddr(i, port int) meshaddr.Address {
	return idAddr32(uint32(i), port)
}

func portSuffix(listen string) string {
	if i := strings.LastIndex(listen, ":"); i >= 0 {
		return listen[i:]
	}
	return listen
}

func lastPortSegment(dial string) string {
	if i := strings.LastIndex(dial, ":"); i >= 0 {
		return dial[i+1:]
	}
	return dial
}

// uuidGeneration stamps this process instance with a restart epoch derived
// from a fresh UUID, so a node that crashes and restarts at the same
// address never reuses a stale generation a peer might still be holding.
func uuidGeneration() uint64 {
	u := uuid.New()
	return binary.BigEndian.Uint64(u[:8])
}
