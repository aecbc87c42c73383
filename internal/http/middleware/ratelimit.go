package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientWindow struct {
	start time.Time
	count int
}

// RateLimit blocks an IP that exceeds maxRequests inside a fixed
// window. It guards the admin login endpoint against password guessing;
// everything else on the HTTP surface is unthrottled.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	var mu sync.Mutex
	windows := make(map[string]*clientWindow)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		RLRequests.WithLabelValues(c.FullPath()).Inc()

		mu.Lock()
		w, ok := windows[ip]
		now := time.Now()
		if !ok || now.Sub(w.start) > window {
			windows[ip] = &clientWindow{start: now, count: 1}
			mu.Unlock()
			c.Next()
			return
		}
		w.count++
		blocked := w.count > maxRequests
		mu.Unlock()

		if blocked {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
