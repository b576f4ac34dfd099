package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions := s.eng.Ledger().Open()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	lgr := s.eng.Ledger()
	open := lgr.Open()
	unrealized := 0.0
	for _, pos := range open {
		unrealized += pos.PnL
	}
	realized := 0.0
	for _, trade := range lgr.Closed() {
		realized += trade.PnL
	}
	c.JSON(http.StatusOK, gin.H{
		"open_positions": len(open),
		"unrealized_pnl": unrealized,
		"realized_pnl":   realized,
	})
}

func (s *Server) handleStrength(c *gin.Context) {
	snap := s.eng.LastSnapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no strength snapshot yet"})
		return
	}

	latest := make(map[string]map[string]float64)
	for tf, currencies := range snap.Series {
		readings := make(map[string]float64, len(currencies))
		for currency := range currencies {
			if v, ok := snap.Current(tf, currency); ok {
				readings[currency] = v
			}
		}
		latest[string(tf)] = readings
	}

	c.JSON(http.StatusOK, gin.H{
		"generated_at": snap.GeneratedAt,
		"strength":     latest,
		"market_state": snap.Uncertainty.State,
		"confidence":   snap.Uncertainty.Confidence,
		"coherence":    snap.Coherence.Score,
	})
}

// handleTrades serves the closed-trade history: the in-process archive,
// topped up from the database when one is configured.
func (s *Server) handleTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	trades := s.eng.Ledger().Closed()
	if len(trades) < limit && s.repo != nil {
		if stored, err := s.repo.RecentClosedTrades(c.Request.Context(), limit); err == nil && len(stored) > len(trades) {
			trades = stored
		}
	}
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(trades),
		"trades": trades,
	})
}
