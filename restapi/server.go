// Package restapi exposes a small admin HTTP surface over the same
// orchestrated write path the chat commands use: channel CRUD, row listing
// and appends. It carries no chat-platform behavior.
package restapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listora/listora"
	"github.com/listora/listora/commands"
	"github.com/listora/listora/registry"
)

// Server holds the handlers' collaborators.
type Server struct {
	svc *commands.Service
	reg *registry.Registry
}

// NewServer creates the admin API server.
func NewServer(svc *commands.Service, reg *registry.Registry) *Server {
	return &Server{svc: svc, reg: reg}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/channels", s.GetChannels)
	r.PUT("/channels/:id", s.PutChannel)
	r.DELETE("/channels/:id", s.DeleteChannel)
	r.GET("/channels/:id/items", s.GetItems)
	r.POST("/channels/:id/items", s.PostItems)
	r.POST("/channels/:id/items/:name/complete", s.PostComplete)
	r.DELETE("/channels/:id/items/:name", s.DeleteItem)
	return r
}

// GetChannels responds with all registered channels as JSON.
func (s *Server) GetChannels(c *gin.Context) {
	chans, err := s.reg.List(c.Request.Context())
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "fetching channels list failed"})
		return
	}
	c.IndentedJSON(http.StatusOK, chans)
}

// PutChannel creates or updates a channel registration.
func (s *Server) PutChannel(c *gin.Context) {
	var ch registry.Channel
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	ch.ChannelID = c.Param("id")
	if err := s.reg.Upsert(c.Request.Context(), ch); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, ch)
}

// DeleteChannel removes a channel registration.
func (s *Server) DeleteChannel(c *gin.Context) {
	if err := s.reg.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetItems responds with the channel's current rows. This is a plain read:
// it takes no lock and may observe an in-flight mutation.
func (s *Server) GetItems(c *gin.Context) {
	rows, err := s.svc.ListItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, rows)
}

type postItemsRequest struct {
	Input string `json:"input" binding:"required"`
}

// PostItems appends parsed items through the duplicate-checked orchestration.
func (s *Server) PostItems(c *gin.Context) {
	var req postItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	res := s.svc.AddItems(c.Request.Context(), c.Param("id"), req.Input)
	writeResult(c, res)
}

// PostComplete completes a (possibly recurring) item.
func (s *Server) PostComplete(c *gin.Context) {
	res := s.svc.CompleteRecurring(c.Request.Context(), c.Param("id"), c.Param("name"), time.Now())
	writeResult(c, res)
}

// DeleteItem removes one item by name.
func (s *Server) DeleteItem(c *gin.Context) {
	res := s.svc.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("name"))
	writeResult(c, res)
}

func writeResult(c *gin.Context, res listora.OperationResult) {
	if res.Succeeded {
		c.IndentedJSON(http.StatusOK, gin.H{"message": res.Message})
		return
	}
	status := http.StatusBadGateway
	switch listora.CodeOf(res.Err) {
	case listora.DuplicateKey:
		status = http.StatusConflict
	case listora.RowCountMismatch:
		status = http.StatusConflict
	case listora.LockAcquisitionFailure:
		status = http.StatusServiceUnavailable
	}
	c.IndentedJSON(status, gin.H{"message": res.Message})
}
