// Package api is a presentation layer over internal/node.Node: a Gin HTTP
// surface and a gorilla/websocket status feed, scoped to this repo's
// operations (no Merkle tree or vector clock endpoints, unlike the route
// table this is grounded on).
//
// Grounded on AryanBagade-dynamoDB's internal/api/handler.go: the same
// Handler-wraps-collaborators shape, gin.H JSON envelopes, and ticker-based
// WebSocket push loop, carried over without that handler's emoji-laced
// logging or its Merkle/vector-clock machinery, which is out of scope here.
package api

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/node"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves one Node's HTTP and WebSocket surface. mu is the same
// mutex cmd/meshkv's tick goroutine holds while calling Node.Tick/Handle:
// the node has no internal locking of its own (per spec.md §5's single-
// threaded cooperative scheduling model), so any caller reaching it from a
// second goroutine, real HTTP traffic here, must serialize through mu.
type Handler struct {
	n  *node.Node
	mu *sync.Mutex
}

// NewHandler builds a Handler over n, serialized through mu.
func NewHandler(n *node.Node, mu *sync.Mutex) *Handler {
	return &Handler{n: n, mu: mu}
}

// GetStatus reports this node's address, membership state, heartbeat, view
// size, and outstanding client-transaction count.
func (h *Handler) GetStatus(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.n.Membership()
	c.JSON(http.StatusOK, gin.H{
		"self":              h.n.Self.String(),
		"state":             m.State().String(),
		"heartbeat":         m.Heartbeat(),
		"member_count":      len(m.Members()),
		"ring_size":         len(h.n.Ring().Nodes),
		"open_transactions": h.n.Coordinator().Open(),
		"has_my_replicas":   addrStrings(h.n.Stabilizer().HasMyReplicas()[:]),
		"have_replicas_of":  addrStrings(h.n.Stabilizer().HaveReplicasOf()[:]),
	})
}

// GetRing reports every member currently on the ring, in ring order.
func (h *Handler) GetRing(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.n.Ring()
	nodes := make([]gin.H, len(r.Nodes))
	for i, rn := range r.Nodes {
		nodes[i] = gin.H{"address": rn.Address.String(), "hash": rn.Hash}
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

type valueBody struct {
	Value string `json:"value" binding:"required"`
}

// PutData issues a CREATE for :key, grounded on the teacher's PutData.
func (h *Handler) PutData(c *gin.Context) {
	key := c.Param("key")
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mu.Lock()
	tid := h.n.ClientCreate(key, body.Value)
	h.mu.Unlock()
	c.JSON(http.StatusAccepted, gin.H{"tid": tid, "key": key})
}

// PatchData issues an UPDATE for :key.
func (h *Handler) PatchData(c *gin.Context) {
	key := c.Param("key")
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mu.Lock()
	tid := h.n.ClientUpdate(key, body.Value)
	h.mu.Unlock()
	c.JSON(http.StatusAccepted, gin.H{"tid": tid, "key": key})
}

// GetData issues a READ for :key.
func (h *Handler) GetData(c *gin.Context) {
	key := c.Param("key")
	h.mu.Lock()
	tid := h.n.ClientRead(key)
	h.mu.Unlock()
	c.JSON(http.StatusAccepted, gin.H{"tid": tid, "key": key})
}

// DeleteData issues a DELETE for :key.
func (h *Handler) DeleteData(c *gin.Context) {
	key := c.Param("key")
	h.mu.Lock()
	tid := h.n.ClientDelete(key)
	h.mu.Unlock()
	c.JSON(http.StatusAccepted, gin.H{"tid": tid, "key": key})
}

// GetTransaction polls a previously issued client call for its outcome. A
// transaction table and an HTTP request don't share a clock here: the
// quorum resolves across future ticks, not inside the request that issued
// it, so a caller polls this endpoint until resolved is true.
func (h *Handler) GetTransaction(c *gin.Context) {
	tid, err := parseTID(c.Param("tid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mu.Lock()
	outcome, ok := h.n.Coordinator().Result(tid)
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"tid": tid, "resolved": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tid":      tid,
		"resolved": true,
		"success":  outcome.Success,
		"value":    outcome.Value,
	})
}

// WebSocketHandler pushes a status snapshot on connect and then every two
// seconds, grounded on the teacher's WebSocketHandler ticker loop.
func (h *Handler) WebSocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshot := func() gin.H {
		h.mu.Lock()
		defer h.mu.Unlock()
		m := h.n.Membership()
		return gin.H{
			"self":              h.n.Self.String(),
			"state":             m.State().String(),
			"heartbeat":         m.Heartbeat(),
			"members":           addrStrings(m.Members()),
			"open_transactions": h.n.Coordinator().Open(),
		}
	}

	if err := conn.WriteJSON(gin.H{"type": "snapshot", "status": snapshot()}); err != nil {
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(gin.H{"type": "heartbeat", "status": snapshot()}); err != nil {
			return
		}
	}
}

// MeshRecv is the receiving end of network.HTTPTransport, grounded on the
// teacher's internal replication endpoint but carrying a raw wire frame
// instead of a JSON envelope. The sender's address travels in
// network.FromHeader since the frame body never names its own sender.
func (h *Handler) MeshRecv(c *gin.Context) {
	fromHex := c.GetHeader(network.FromHeader)
	from, err := meshaddr.ParseHex(fromHex)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.n.Handle(from, data)
	h.mu.Unlock()
	c.Status(http.StatusOK)
}

func addrStrings(addrs []meshaddr.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.IsZero() {
			continue
		}
		out = append(out, a.String())
	}
	return out
}

func parseTID(s string) (int, error) {
	return strconv.Atoi(s)
}
