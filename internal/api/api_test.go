package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"meshkv/internal/driver"
	"meshkv/internal/eventlog"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/node"
	"meshkv/internal/store"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func addr(n byte) meshaddr.Address {
	return meshaddr.New([4]byte{0, 0, 0, n}, 9000+uint16(n))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

// TestGetStatusReportsSeedState exercises GetStatus against a single seed
// node, which enters IN_GROUP on Start without needing any peer traffic.
func TestGetStatusReportsSeedState(t *testing.T) {
	net := network.NewEmulator(1)
	n := node.New(addr(1), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(1)))
	n.Start(addr(1))

	router := NewRouter(n, &sync.Mutex{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["state"] != "IN_GROUP" {
		t.Fatalf("state = %v, want IN_GROUP", body["state"])
	}
	if body["member_count"].(float64) != 1 {
		t.Fatalf("member_count = %v, want 1", body["member_count"])
	}
}

// TestPutDataWithoutBodyIsBadRequest checks the required-value binding.
func TestPutDataWithoutBodyIsBadRequest(t *testing.T) {
	net := network.NewEmulator(1)
	n := node.New(addr(1), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(1)))
	n.Start(addr(1))

	router := NewRouter(n, &sync.Mutex{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/kv/foo", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestPutThenPollTransactionResolves drives three real nodes to convergence
// via internal/driver, issues a CREATE through the HTTP handler, ticks the
// cluster, and polls /api/v1/tx/:tid until it reports resolved.
func TestPutThenPollTransactionResolves(t *testing.T) {
	net := network.NewEmulator(2)
	d := driver.New(net)

	seed := addr(1)
	var nodes []*node.Node
	for i := byte(1); i <= 3; i++ {
		n := node.New(addr(i), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(int64(i))))
		d.Add(n)
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		n.Start(seed)
	}
	d.Run(20)

	n1, _ := d.Node(seed)
	router := NewRouter(n1, &sync.Mutex{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/kv/foo", bytes.NewBufferString(`{"value":"bar"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("PUT status = %d, want 202", rec.Code)
	}
	tid := int(decodeJSON(t, rec)["tid"].(float64))

	d.Run(10)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/tx/"+strconv.Itoa(tid), nil)
	router.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["resolved"] != true {
		t.Fatalf("tx %d not resolved after 10 ticks: %v", tid, body)
	}
	if body["success"] != true {
		t.Fatalf("tx %d resolved unsuccessfully: %v", tid, body)
	}
}

// TestGetTransactionUnknownIsUnresolved checks polling a tid that was never
// issued reports resolved=false rather than erroring.
func TestGetTransactionUnknownIsUnresolved(t *testing.T) {
	net := network.NewEmulator(1)
	n := node.New(addr(1), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(1)))
	n.Start(addr(1))

	router := NewRouter(n, &sync.Mutex{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tx/999", nil)
	router.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["resolved"] != false {
		t.Fatalf("expected unresolved for unknown tid, got %v", body)
	}
}
