package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/slatehq/slatebox/internal/version"
)

func (s *Server) Index(c *gin.Context) {
	c.String(http.StatusOK, version.DetailedWithApp())
}

func (s *Server) Health(c *gin.Context) {
	c.PureJSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Short(),
	})
}

func (s *Server) Status(c *gin.Context) {
	count, err := s.catalog.Count()
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"version":     version.Short(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"loader":      s.status.Status(),
		"entries":     count,
		"subscribers": s.hub.ClientCount(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp["rss"] = humanize.Bytes(mem.RSS)
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			resp["cpu"] = fmt.Sprintf("%.1f%%", cpu)
		}
	}

	c.PureJSON(http.StatusOK, resp)
}

// Entries lists summaries for every stored entry, optionally narrowed to
// identifiers starting with ?prefix=.
func (s *Server) Entries(c *gin.Context) {
	sums, err := s.catalog.Summaries()
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if prefix := c.Query("prefix"); prefix != "" {
		filtered := sums[:0]
		for _, sum := range sums {
			if strings.HasPrefix(sum.ID, prefix) {
				filtered = append(filtered, sum)
			}
		}
		sums = filtered
	}

	c.PureJSON(http.StatusOK, gin.H{
		"count":   len(sums),
		"entries": sums,
	})
}

// Entry serves one record by identifier. ?format=html returns the
// rendered artifact instead of the record.
func (s *Server) Entry(c *gin.Context) {
	id := strings.TrimPrefix(c.Param("id"), "/")
	if id == "" {
		c.PureJSON(http.StatusBadRequest, gin.H{"error": "missing entry id"})
		return
	}

	rec, err := s.catalog.Get(id)
	if err != nil {
		c.PureJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.PureJSON(http.StatusNotFound, gin.H{"error": "entry not found", "id": id})
		return
	}

	if c.Query("format") == "html" {
		if rec.Rendered == nil {
			c.PureJSON(http.StatusNotFound, gin.H{"error": "entry has no rendered artifact", "id": id})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rec.Rendered.HTML))
		return
	}

	c.PureJSON(http.StatusOK, rec)
}
