package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
)

// CORSMiddleware configures Cross-Origin Resource Sharing for the application.
// CLIENT_URL may hold a comma separated list of origins. When it is empty the
// key-gated API is open to every origin and credentials are not allowed.
func CORSMiddleware(appConfig *config.Config) gin.HandlerFunc {
	if appConfig == nil {
		panic("appConfig is not configured for CORSMiddleware")
	}

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Api-Key", "X-Callback-Signature"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}

	origins := splitOrigins(appConfig.ClientURL)
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
