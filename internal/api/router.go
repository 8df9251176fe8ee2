package api

import (
	"sync"

	"meshkv/internal/node"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the full route table for n, grounded on the teacher's
// cmd/server/main.go v1 group layout, trimmed to this repo's operations.
// mu guards every access to n, shared with whatever goroutine ticks it.
func NewRouter(n *node.Node, mu *sync.Mutex) *gin.Engine {
	h := NewHandler(n, mu)

	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.GetStatus)
		v1.GET("/ring", h.GetRing)

		v1.PUT("/kv/:key", h.PutData)
		v1.PATCH("/kv/:key", h.PatchData)
		v1.GET("/kv/:key", h.GetData)
		v1.DELETE("/kv/:key", h.DeleteData)

		v1.GET("/tx/:tid", h.GetTransaction)
	}

	router.GET("/ws", h.WebSocketHandler)
	router.POST("/mesh/recv", h.MeshRecv)

	return router
}
