package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
	"faceattend/internal/audit"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/enroll"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/store"
	"faceattend/internal/vision"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// deps bundles what the router needs, so tests can wire fakes.
type deps struct {
	cfg         config.App
	att         *attendance.Service
	enrollments enroll.Store
	identities  *identity.Repository
	attempts    *audit.Repository
	healthz     func(ctx context.Context) (redisOK, dbOK bool)
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	late, err := attendance.ParseTimeOfDay(cfg.LateThreshold)
	if err != nil {
		return err
	}

	d := deps{
		cfg:         cfg,
		att:         attendance.NewService(attendance.NewRepository(db.Client), late),
		enrollments: enroll.NewRepository(db.Client, cfg.EmbeddingDim),
		identities:  identity.NewRepository(db.Client),
		attempts:    audit.NewRepository(db.Client),
		healthz: func(ctx context.Context) (bool, bool) {
			return redisClient.Healthy(ctx), db.Client.PingContext(ctx) == nil
		},
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      newRouter(d),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (late threshold %s, match threshold %.2f)",
			cfg.HTTPPort, cfg.LateThreshold, cfg.MatchThreshold)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

func newRouter(d deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(d.cfg.RateLimitPerMin, d.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisOK, dbOK := d.healthz(c.Request.Context())
		status := http.StatusOK
		if !redisOK || !dbOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisOK, "db": dbOK})
	})

	r.POST("/v1/identities/register", func(c *gin.Context) {
		var req struct {
			IdentityID string  `json:"identity_id"`
			Name       *string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.IdentityID == "" {
			req.IdentityID = uuid.NewString()
		}
		if d.identities != nil {
			if err := d.identities.Upsert(c.Request.Context(), req.IdentityID, req.Name); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		tokens, err := auth.Issue(req.IdentityID, "identity", d.cfg.JWTIssuer, d.cfg.JWTSigningKey, d.cfg.AccessTTL, d.cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if d.identities != nil {
			_ = d.identities.SaveRefreshToken(c.Request.Context(), req.IdentityID, tokens.RefreshToken, tokens.RefreshExp)
		}

		c.JSON(http.StatusCreated, gin.H{
			"identity_id":   req.IdentityID,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.IdentityAuth(d.cfg.JWTSigningKey, d.cfg.JWTIssuer))

	authGroup.POST("/attendance/check-in", func(c *gin.Context) {
		rec, err := d.att.CheckIn(c.Request.Context(), auth.IdentityID(c))
		respondTransition(c, "check_in", rec, err)
	})

	authGroup.POST("/attendance/check-out", func(c *gin.Context) {
		rec, err := d.att.CheckOut(c.Request.Context(), auth.IdentityID(c))
		respondTransition(c, "check_out", rec, err)
	})

	authGroup.GET("/attendance/today", func(c *gin.Context) {
		rec, err := d.att.Today(c.Request.Context(), auth.IdentityID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance_record": rec})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		from := c.Query("from")
		to := c.Query("to")
		if from == "" || to == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to dates required"})
			return
		}
		recs, err := d.att.Range(c.Request.Context(), auth.IdentityID(c), from, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance_records": recs})
	})

	authGroup.POST("/enrollment", func(c *gin.Context) {
		var req struct {
			Embedding []float32 `json:"embedding" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := d.enrollments.Put(c.Request.Context(), auth.IdentityID(c), vision.Embedding(req.Embedding)); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, enroll.ErrDimensionMismatch) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrolled": true, "dim": len(req.Embedding)})
	})

	authGroup.GET("/enrollment", func(c *gin.Context) {
		emb, ok, err := d.enrollments.Get(c.Request.Context(), auth.IdentityID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no enrollment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"embedding": emb, "dim": len(emb)})
	})

	authGroup.GET("/attempts", func(c *gin.Context) {
		if d.attempts == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt log not available"})
			return
		}
		attempts, err := d.attempts.ListRecent(c.Request.Context(), auth.IdentityID(c), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attempts": attempts})
	})

	return r
}

// respondTransition maps state machine errors to HTTP. Transition errors are
// idempotent no-ops on the record; they come back as 400s with a stable code.
func respondTransition(c *gin.Context, purpose string, rec attendance.Record, err error) {
	if err == nil {
		metrics.TransitionsTotal.WithLabelValues(purpose, "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"attendance_record": rec})
		return
	}

	var code string
	switch {
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		code = "already_checked_in"
	case errors.Is(err, attendance.ErrNotCheckedInYet):
		code = "not_checked_in_yet"
	case errors.Is(err, attendance.ErrAlreadyCheckedOut):
		code = "already_checked_out"
	default:
		metrics.TransitionsTotal.WithLabelValues(purpose, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.TransitionsTotal.WithLabelValues(purpose, code).Inc()
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": err.Error()})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
