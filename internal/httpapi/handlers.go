package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deptattendance/internal/attendance"
	"deptattendance/internal/auth"
	"deptattendance/internal/queue"
)

const subjectKey = "subject"

var errNotEnrolled = errors.New("attendance lists students not enrolled in this subject")

type loginRequest struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   int64           `json:"expires_at"`
	Role        attendance.Role `json:"role"`
	Username    string          `json:"username"`
}

type hodView struct {
	Username string `json:"username"`
	Branch   string `json:"branch"`
	Batch    string `json:"batch"`
}

type facultyView struct {
	Username string               `json:"username"`
	FullName string               `json:"full_name"`
	Subjects []attendance.Subject `json:"subjects"`
}

type studentView struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type reportRow struct {
	studentView
	Stats attendance.Stats `json:"stats"`
}

type studentSubject struct {
	attendance.SubjectRef
	Stats attendance.Stats `json:"stats"`
}

type saveAttendanceRequest struct {
	Presence map[string]bool `json:"presence"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	role, ok := attendance.ParseRole(req.Role)
	if !ok {
		role = attendance.Role(req.Role)
	}
	sess, err := s.store.Authenticate(c.Request.Context(), role, req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	tok, err := auth.Issue(sess, s.cfg.Issuer, s.cfg.SigningKey, s.cfg.SessionTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt.Unix(),
		Role:        sess.Role,
		Username:    sess.Username,
	})
}

func (s *Server) logout(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	until := time.Now().Add(s.cfg.SessionTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(c.Request.Context(), claims.ID, until); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, session(c))
}

func (s *Server) listHODs(c *gin.Context) {
	hods, err := s.store.ListHODs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]hodView, 0, len(hods))
	for _, h := range hods {
		views = append(views, hodView{Username: h.Username, Branch: h.Branch, Batch: h.Batch})
	}
	c.JSON(http.StatusOK, gin.H{"hods": views})
}

func (s *Server) addHOD(c *gin.Context) {
	var nh attendance.NewHOD
	if err := c.ShouldBindJSON(&nh); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.store.AddHOD(c.Request.Context(), nh); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) removeHOD(c *gin.Context) {
	if err := s.store.RemoveHOD(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listFaculties(c *gin.Context) {
	facs, err := s.store.ListFaculties(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]facultyView, 0, len(facs))
	for _, f := range facs {
		views = append(views, facultyView{Username: f.Username, FullName: f.FullName, Subjects: f.Subjects})
	}
	c.JSON(http.StatusOK, gin.H{"faculty": views})
}

func (s *Server) addFacultyAndSubject(c *gin.Context) {
	var nf attendance.NewFacultySubject
	if err := c.ShouldBindJSON(&nf); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.store.AddFacultyAndSubject(c.Request.Context(), nf); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) removeFaculty(c *gin.Context) {
	if err := s.store.RemoveFaculty(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) mySubjects(c *gin.Context) {
	subjects, err := s.store.ListSubjectsForFaculty(c.Request.Context(), session(c).Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

// requireOwner loads the subject named in the path and rejects faculty who
// do not own it.
func (s *Server) requireOwner(c *gin.Context) {
	owned, err := s.store.FindSubjectByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	if owned.Faculty != session(c).Username {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "subject belongs to another faculty"})
		return
	}
	c.Set(subjectKey, owned)
	c.Next()
}

func ownedSubject(c *gin.Context) attendance.OwnedSubject {
	v, _ := c.Get(subjectKey)
	owned, _ := v.(attendance.OwnedSubject)
	return owned
}

func (s *Server) listStudents(c *gin.Context) {
	students, err := s.store.ListEnrolledStudents(c.Request.Context(), ownedSubject(c).Code)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]studentView, 0, len(students))
	for _, stu := range students {
		views = append(views, studentView{Username: stu.Username, FullName: stu.FullName})
	}
	c.JSON(http.StatusOK, gin.H{"students": views})
}

func (s *Server) addStudent(c *gin.Context) {
	var ne attendance.NewEnrollment
	if err := c.ShouldBindJSON(&ne); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ne.SubjectCode = ownedSubject(c).Code
	if err := s.store.AddStudentToSubject(c.Request.Context(), ne); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) removeStudent(c *gin.Context) {
	if err := s.store.RemoveStudentFromSubject(c.Request.Context(), ownedSubject(c).Code, c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getAttendance(c *gin.Context) {
	date := c.Param("date")
	marks, err := s.store.GetAttendanceForDate(c.Request.Context(), ownedSubject(c).Code, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "presence": marks})
}

func (s *Server) saveAttendance(c *gin.Context) {
	var req saveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	owned := ownedSubject(c)
	date := c.Param("date")
	if err := s.checkEnrolled(c, owned.Code, req.Presence); err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.SaveAttendance(c.Request.Context(), owned.Code, date, req.Presence); err != nil {
		respondError(c, err)
		return
	}
	s.publishSaved(c, queue.AttendanceSaved{
		SubjectCode: owned.Code,
		Date:        attendance.CleanString(date),
		Faculty:     owned.Faculty,
		Marked:      len(req.Presence),
	})
	c.Status(http.StatusNoContent)
}

// checkEnrolled rejects marks for usernames not enrolled in the subject.
func (s *Server) checkEnrolled(c *gin.Context, code string, presence map[string]bool) error {
	students, err := s.store.ListEnrolledStudents(c.Request.Context(), code)
	if err != nil {
		return err
	}
	enrolled := make(map[string]bool, len(students))
	for _, stu := range students {
		enrolled[stu.Username] = true
	}
	var flds []attendance.FieldError
	for u := range presence {
		if !enrolled[u] {
			flds = append(flds, attendance.FieldError{Field: "presence." + u, Error: "not enrolled in this subject"})
		}
	}
	if len(flds) == 0 {
		return nil
	}
	sort.Slice(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
	return attendance.NewValidationError(errNotEnrolled, flds...)
}

// publishSaved notifies the watcher. The save has already succeeded, so
// failures are only logged.
func (s *Server) publishSaved(c *gin.Context, evt queue.AttendanceSaved) {
	if s.queue == nil {
		return
	}
	msg, err := queue.NewAttendanceSaved(evt)
	if err == nil {
		err = s.queue.Publish(c.Request.Context(), msg)
	}
	if err != nil {
		s.log.Warn("publishing attendance.saved",
			zap.String("subject", evt.SubjectCode),
			zap.String("date", evt.Date),
			zap.Error(err),
		)
	}
}

func (s *Server) subjectReport(c *gin.Context) {
	report, err := s.store.SubjectReport(c.Request.Context(), ownedSubject(c).Code)
	if err != nil {
		respondError(c, err)
		return
	}
	rows := make([]reportRow, 0, len(report))
	for _, r := range report {
		rows = append(rows, reportRow{
			studentView: studentView{Username: r.Username, FullName: r.FullName},
			Stats:       r.Stats,
		})
	}
	c.JSON(http.StatusOK, gin.H{"subject": ownedSubject(c), "students": rows})
}

func (s *Server) studentSubjects(c *gin.Context) {
	ctx := c.Request.Context()
	username := session(c).Username
	refs, err := s.store.ListSubjectsForStudent(ctx, username)
	if err != nil {
		respondError(c, err)
		return
	}
	subjects := make([]studentSubject, 0, len(refs))
	for _, ref := range refs {
		st, err := s.store.ComputeAttendanceStats(ctx, ref.Code, username)
		if err != nil {
			respondError(c, err)
			return
		}
		subjects = append(subjects, studentSubject{SubjectRef: ref, Stats: st})
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (s *Server) studentHistory(c *gin.Context) {
	ctx := c.Request.Context()
	username := session(c).Username
	code := attendance.CleanString(c.Param("code"))

	refs, err := s.store.ListSubjectsForStudent(ctx, username)
	if err != nil {
		respondError(c, err)
		return
	}
	enrolled := false
	for _, ref := range refs {
		if ref.Code == code {
			enrolled = true
			break
		}
	}
	if !enrolled {
		respondError(c, attendance.ErrNotFound)
		return
	}

	history, err := s.store.StudentHistory(ctx, code, username)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := s.store.ComputeAttendanceStats(ctx, code, username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "stats": stats, "history": history})
}
