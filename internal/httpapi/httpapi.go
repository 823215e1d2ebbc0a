// Package httpapi exposes a small operational surface alongside the gRPC
// streaming service: a liveness probe and a plain JSON snapshot of the
// current book, generalized from a router-group registration style into a
// single-purpose debug API.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BullionBear/aggbook/internal/book"
	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
)

// Server holds the dependencies the debug endpoints read from.
type Server struct {
	book  *book.Book
	scale ticks.Scale
	topN  int
}

// New builds a Server reading b at the given scale.
func New(b *book.Book, scale ticks.Scale, topN int) *Server {
	return &Server{book: b, scale: scale, topN: topN}
}

// Register attaches the debug routes to rg.
func (s *Server) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", s.healthz)
	rg.GET("/book", s.getBook)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type levelView struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

func (s *Server) getBook(c *gin.Context) {
	bids := s.book.TopN(venue.Bid, s.topN)
	asks := s.book.TopN(venue.Ask, s.topN)
	c.JSON(http.StatusOK, gin.H{
		"bids": toLevelViews(bids, s.scale),
		"asks": toLevelViews(asks, s.scale),
	})
}

func toLevelViews(entries []book.Entry, scale ticks.Scale) []levelView {
	out := make([]levelView, len(entries))
	for i, e := range entries {
		out[i] = levelView{Exchange: string(e.Origin), Price: e.Price.Float(scale), Amount: e.Qty.Float(scale)}
	}
	return out
}
