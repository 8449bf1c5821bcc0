// internal/middleware/cors_middleware.go
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ffb-control-service/internal/config"
)

const corsMaxAge = 12 * time.Hour

// CORSMiddleware lets the browser UI call the API and open the event socket.
// An empty origin list or a "*" entry allows every origin.
func CORSMiddleware(security *config.SecurityConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders:   []string{"Content-Length", RequestIDHeader},
		AllowWebSockets: true,
		MaxAge:          corsMaxAge,
	}

	if allowAll(security.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = security.AllowedOrigins
		corsConfig.AllowCredentials = true
	}

	return cors.New(corsConfig)
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
