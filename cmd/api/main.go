package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/event"
	"campusattend/internal/fraud"
	"campusattend/internal/geo"
	"campusattend/internal/geocode"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/ledger"
	"campusattend/internal/location"
	"campusattend/internal/queue"
	"campusattend/internal/store"
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

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:enrich")
	}

	grants := ledger.NewRepository(db.Client)
	events := event.NewRepository(db.Client)
	repo := attendance.NewRepository(db.Client, grants)
	svc := attendance.NewService(events, repo, q)
	signals := fraud.NewAggregator(repo)

	// Kiosk terminals acquire the position from a co-located device agent
	// when the request body carries none.
	var acquirer *location.Acquirer
	if cfg.KioskAgentURL != "" {
		acquirer = location.NewAcquirer(location.NewAgentSource(cfg.KioskAgentURL), location.Options{
			HighAccuracy: cfg.LocationHighAccuracy,
			Timeout:      cfg.LocationTimeout,
			MaxAge:       cfg.LocationMaxAge,
		})
		log.Println("kiosk location agent configured:", cfg.KioskAgentURL)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Identity is established upstream (campus SSO); this endpoint only
	// exchanges a trusted student id for service tokens.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			Role      string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role := req.Role
		if role == "" {
			role = auth.RoleStudent
		}
		tokens, err := auth.Issue(req.StudentID, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			EventID  string `json:"event_id" binding:"required"`
			Position *struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
				Accuracy  float64 `json:"accuracy"`
			} `json:"student_location"`
			Address *geocode.Address `json:"location_address"`
			Device  struct {
				Platform string `json:"platform"`
			} `json:"device_info"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		claims := auth.FromContext(c)

		var pos location.Position
		if req.Position != nil {
			pos = location.Position{
				Latitude:   req.Position.Latitude,
				Longitude:  req.Position.Longitude,
				AccuracyM:  req.Position.Accuracy,
				CapturedAt: time.Now().UTC(),
			}
		} else {
			acquired, err := acquirer.Acquire(c.Request.Context())
			if err != nil {
				status, code := acquisitionStatus(err)
				c.JSON(status, gin.H{"success": false, "code": code, "error": err.Error()})
				return
			}
			pos = acquired
		}

		if !geo.ValidCoordinate(pos.Latitude, pos.Longitude) || pos.AccuracyM < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "invalid_position", "error": "position out of range"})
			return
		}

		res, err := svc.Mark(c.Request.Context(), attendance.MarkRequest{
			StudentID: claims.StudentID,
			EventID:   req.EventID,
			Position:  pos,
			Address:   req.Address,
			Device: attendance.Device{
				UserAgent: c.Request.UserAgent(),
				IP:        c.ClientIP(),
				Platform:  req.Device.Platform,
			},
		})
		if err != nil {
			writeMarkRejection(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "Attendance marked successfully",
			"data": gin.H{
				"attendance":     res.Attendance,
				"points_awarded": res.PointsAwarded,
				"distance":       int(res.Attendance.DistanceM),
				"verified":       true,
			},
		})
	})

	authGroup.GET("/attendance/student", func(c *gin.Context) {
		claims := auth.FromContext(c)
		listStudentAttendance(c, repo, claims.StudentID)
	})

	authGroup.GET("/attendance/student/:sid", func(c *gin.Context) {
		claims := auth.FromContext(c)
		sid := c.Param("sid")
		if claims.Role != auth.RoleOperator && claims.StudentID != sid {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "access denied"})
			return
		}
		listStudentAttendance(c, repo, sid)
	})

	authGroup.GET("/attendance/event/:eid", func(c *gin.Context) {
		eid := c.Param("eid")
		evt, err := events.Get(c.Request.Context(), eid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		if evt == nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "event_not_found"})
			return
		}

		recs, err := repo.ListByEvent(c.Request.Context(), eid, intQuery(c, "limit", 50), intQuery(c, "offset", 0))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		stats, err := repo.StatsByEvent(c.Request.Context(), eid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		registered, err := events.RegistrationCount(c.Request.Context(), eid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		rate := 0
		if registered > 0 {
			rate = stats.TotalAttended * 100 / registered
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"attendance": recs,
				"stats": gin.H{
					"total_registered":   registered,
					"total_attended":     stats.TotalAttended,
					"attendance_rate":    rate,
					"average_risk_score": stats.MeanRiskScore,
				},
			},
		})
	})

	authGroup.GET("/attendance/fraud-signals", auth.RequireRole(auth.RoleOperator), func(c *gin.Context) {
		params := fraud.Params{
			ClubID: c.Query("club_id"),
			Limit:  intQuery(c, "limit", cfg.FraudPageSize),
		}
		if t, ok := timeQuery(c, "from"); ok {
			params.From = &t
		}
		if t, ok := timeQuery(c, "to"); ok {
			params.To = &t
		}
		report, err := signals.Report(c.Request.Context(), params)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
	})

	authGroup.PATCH("/attendance/:id/flags", auth.RequireRole(auth.RoleOperator), func(c *gin.Context) {
		var req struct {
			Flags []string `json:"flags" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		rec, err := svc.Annotate(c.Request.Context(), c.Param("id"), req.Flags)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "attendance_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
	})

	authGroup.GET("/students/:sid/points", func(c *gin.Context) {
		claims := auth.FromContext(c)
		sid := c.Param("sid")
		if claims.Role != auth.RoleOperator && claims.StudentID != sid {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "access denied"})
			return
		}
		total, err := grants.TotalPoints(c.Request.Context(), sid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		history, err := grants.ListByStudent(c.Request.Context(), sid, intQuery(c, "limit", 50))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"total_points": total, "grants": history},
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func listStudentAttendance(c *gin.Context, repo *attendance.Repository, sid string) {
	recs, err := repo.ListByStudent(c.Request.Context(), sid, intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": recs})
}

// writeMarkRejection maps marking outcomes onto machine-distinguishable
// response codes. TooFar carries the numbers the client needs to render
// "move N meters closer".
func writeMarkRejection(c *gin.Context, err error) {
	var tooFar *attendance.TooFarError
	switch {
	case errors.Is(err, attendance.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "event_not_found", "message": "Event not found"})
	case errors.Is(err, attendance.ErrNotRegistered):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "code": "not_registered", "message": "You are not registered for this event"})
	case errors.Is(err, attendance.ErrAlreadyMarked):
		c.JSON(http.StatusConflict, gin.H{"success": false, "code": "already_marked", "message": "Attendance already marked for this event"})
	case errors.As(err, &tooFar):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"code":    "too_far",
			"message": tooFar.Error(),
			"data": gin.H{
				"distance":        tooFar.DistanceM,
				"required_radius": tooFar.RadiusM,
				"too_far":         true,
			},
		})
	default:
		log.Printf("mark attendance error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
	}
}

// acquisitionStatus maps the closed acquisition error set to HTTP statuses.
// All of these are recoverable by user retry; none is fatal.
func acquisitionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, location.ErrUnsupported):
		return http.StatusBadRequest, "location_unsupported"
	case errors.Is(err, location.ErrPermissionDenied):
		return http.StatusForbidden, "location_permission_denied"
	case errors.Is(err, location.ErrPositionUnavailable):
		return http.StatusServiceUnavailable, "position_unavailable"
	case errors.Is(err, location.ErrTimeout):
		return http.StatusServiceUnavailable, "location_timeout"
	default:
		return http.StatusInternalServerError, "location_unknown"
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func timeQuery(c *gin.Context, key string) (time.Time, bool) {
	if v := c.Query(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
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
