package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/tutortrack/tutor-admin-api/internal/middleware"
	"github.com/tutortrack/tutor-admin-api/internal/service"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth    *AuthHandler
	Student *StudentHandler
	Package *PackageHandler
	Record  *RecordHandler
	Export  *ExportHandler
}

// RegisterRoutes mounts the API on the engine. Everything under /api/v1
// except login requires a valid token.
func RegisterRoutes(r *gin.Engine, h Handlers, auth *service.AuthService, metrics *service.MetricsService) {
	r.Use(middleware.Metrics(metrics))

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	protected.GET("/students", h.Student.List)
	protected.POST("/students", h.Student.Create)
	protected.GET("/students/:id", h.Student.Get)
	protected.PUT("/students/:id", h.Student.Update)
	protected.DELETE("/students/:id", h.Student.Delete)
	protected.GET("/students/:id/summary", h.Student.Summary)
	protected.POST("/students/:id/recalculate-hours", h.Student.RecalculateHours)

	protected.GET("/students/:id/packages", h.Package.ListByStudent)
	protected.GET("/students/:id/packages/eligible", h.Package.Eligible)
	protected.POST("/packages", h.Package.Create)
	protected.GET("/packages/:id", h.Package.Get)
	protected.PUT("/packages/:id", h.Package.Update)
	protected.DELETE("/packages/:id", h.Package.Delete)

	protected.GET("/students/:id/consumption-records", h.Record.ListConsumptions)
	protected.POST("/students/:id/consumption-records", h.Record.SubmitConsumption)
	protected.GET("/students/:id/consumption-records/export", h.Export.ConsumptionHistory)
	protected.GET("/students/:id/class-records", h.Record.ListClassRecords)
	protected.POST("/students/:id/class-records", h.Record.CreateClassRecord)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// RegisterHealth mounts the liveness and readiness probes. Readiness checks
// the database and, when configured, redis.
func RegisterHealth(r *gin.Engine, db *sqlx.DB, redisClient *redis.Client) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "database"})
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "redis"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}
