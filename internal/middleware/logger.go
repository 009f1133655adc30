package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs method, path, status and latency for every request.
// The log level follows the status code class.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logLine := fmt.Sprintf("%d | %-12s | %-15s | %-7s | %s",
			statusCode,
			latency.Truncate(time.Microsecond),
			c.ClientIP(),
			c.Request.Method,
			path,
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			logLine += " | " + errs
		}

		switch {
		case statusCode >= 500:
			log.Printf("[ERROR] %s", logLine)
		case statusCode >= 400:
			log.Printf("[WARN] %s", logLine)
		default:
			log.Printf("[INFO] %s", logLine)
		}
	}
}

// RecoveryMiddleware turns handler panics into 500 responses instead of
// crashing the process.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "internal server error",
				})
			}
		}()

		c.Next()
	}
}
