// Package httpapi exposes the attendance store over JSON HTTP. Each role's
// dashboard maps onto a group of routes guarded by a bearer session.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deptattendance/internal/attendance"
	"deptattendance/internal/auth"
	"deptattendance/internal/queue"
)

// Config holds the session settings of the API.
type Config struct {
	Issuer     string
	SigningKey string
	SessionTTL time.Duration
}

// Server holds the dependencies of the handlers.
type Server struct {
	store    *attendance.Store
	queue    queue.Queue
	denylist auth.Denylist
	log      *zap.Logger
	cfg      Config
}

// New creates a server. q may be nil, in which case saves are not published.
func New(store *attendance.Store, q queue.Queue, denylist auth.Denylist, log *zap.Logger, cfg Config) *Server {
	return &Server{store: store, queue: q, denylist: denylist, log: log, cfg: cfg}
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/login", s.login)

	authed := v1.Group("", auth.RequireSession(s.cfg.SigningKey, s.cfg.Issuer, s.denylist), s.requireAccount)
	authed.POST("/logout", s.logout)
	authed.GET("/me", s.me)

	admin := authed.Group("/hods", auth.RequireRole(attendance.RoleAdmin))
	admin.GET("", s.listHODs)
	admin.POST("", s.addHOD)
	admin.DELETE("/:username", s.removeHOD)

	hod := authed.Group("/faculty", auth.RequireRole(attendance.RoleHOD))
	hod.GET("", s.listFaculties)
	hod.POST("", s.addFacultyAndSubject)
	hod.DELETE("/:username", s.removeFaculty)

	authed.GET("/faculty/me/subjects", auth.RequireRole(attendance.RoleFaculty), s.mySubjects)

	subj := authed.Group("/subjects/:code", auth.RequireRole(attendance.RoleFaculty), s.requireOwner)
	subj.GET("/students", s.listStudents)
	subj.POST("/students", s.addStudent)
	subj.DELETE("/students/:username", s.removeStudent)
	subj.GET("/attendance/:date", s.getAttendance)
	subj.PUT("/attendance/:date", s.saveAttendance)
	subj.GET("/report", s.subjectReport)

	stu := authed.Group("/students/me", auth.RequireRole(attendance.RoleStudent))
	stu.GET("/subjects", s.studentSubjects)
	stu.GET("/subjects/:code/history", s.studentHistory)
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.log.Warn("store ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAccount rejects sessions whose account has been removed since the
// token was issued.
func (s *Server) requireAccount(c *gin.Context) {
	ok, err := s.store.AccountExists(c.Request.Context(), session(c))
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "account no longer exists"})
		return
	}
	c.Next()
}

func session(c *gin.Context) attendance.Session {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Session()
}
