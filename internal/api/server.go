// Package api exposes the attendance engine over HTTP: login, the digit
// challenge round, attendance submission, and the decorated history view.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"asistencia/internal/auth"
	"asistencia/internal/challenge"
	"asistencia/internal/directory"
	"asistencia/internal/history"
	"asistencia/internal/login"
	"asistencia/internal/session"
)

// Directory is the narrow view of the remote collaborator the handlers
// need.
type Directory interface {
	ListUsers(ctx context.Context) ([]directory.User, error)
	RecordAttendance(ctx context.Context, recordID int64) (string, error)
	ListAttendance(ctx context.Context, recordID int64) ([]directory.Record, error)
}

// Options carries the wiring for a Server.
type Options struct {
	Directory     Directory
	Sessions      session.Store
	Generator     *challenge.Generator
	Monitor       *history.Monitor
	Logger        *zap.Logger
	JWTIssuer     string
	JWTSigningKey string
	TokenTTL      time.Duration
	PageSize      int
}

// Server holds the handler dependencies.
type Server struct {
	dir      Directory
	sessions session.Store
	gen      *challenge.Generator
	monitor  *history.Monitor
	log      *zap.Logger

	jwtIssuer string
	jwtKey    string
	tokenTTL  time.Duration
	pageSize  int
}

// NewServer builds a server from options, filling defaults where needed.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Generator == nil {
		opts.Generator = challenge.NewGenerator()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.PageSize <= 0 {
		opts.PageSize = history.DefaultPageSize
	}
	return &Server{
		dir:       opts.Directory,
		sessions:  opts.Sessions,
		gen:       opts.Generator,
		monitor:   opts.Monitor,
		log:       opts.Logger,
		jwtIssuer: opts.JWTIssuer,
		jwtKey:    opts.JWTSigningKey,
		tokenTTL:  opts.TokenTTL,
		pageSize:  opts.PageSize,
	}
}

type userView struct {
	Record    string `json:"record"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	LastNames string `json:"lastnames"`
	Names     string `json:"names"`
	Mail      string `json:"mail"`
	Phone     string `json:"phone"`
}

func viewOf(u directory.User) userView {
	return userView{
		Record:    u.Record.String(),
		Username:  u.Username,
		FullName:  u.FullName(),
		LastNames: u.LastNames,
		Names:     u.FirstNames,
		Mail:      u.Mail,
		Phone:     u.Phone,
	}
}

// Login authenticates a username plus ID-as-password against a fresh
// directory listing, opens a session, and hands out the first challenge.
func (s *Server) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		loginAttempts.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	userNorm, pass, err := login.ValidateInput(req.Username, req.Password)
	if err != nil {
		loginAttempts.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := s.dir.ListUsers(c.Request.Context())
	if err != nil {
		loginAttempts.WithLabelValues("transport_error").Inc()
		s.log.Warn("directory listing failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach the directory service"})
		return
	}

	user, err := login.Match(userNorm, pass, listing)
	switch {
	case errors.Is(err, login.ErrNotAuthorized):
		loginAttempts.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, login.ErrIncorrectPassword):
		loginAttempts.WithLabelValues("bad_credentials").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		loginAttempts.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	sess := session.Session{
		ID:        uuid.NewString(),
		User:      user,
		Challenge: s.gen.New(),
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Put(c.Request.Context(), sess); err != nil {
		loginAttempts.WithLabelValues("error").Inc()
		s.log.Error("session put failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}

	token, exp, err := auth.Issue(sess.ID, user.Username, s.jwtIssuer, s.jwtKey, s.tokenTTL)
	if err != nil {
		loginAttempts.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	loginAttempts.WithLabelValues("ok").Inc()
	challengesIssued.Inc()
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp.Unix(),
		"user":       viewOf(user),
		"challenge":  sess.Challenge,
	})
}

// Logout closes the session and stops its history watch.
func (s *Server) Logout(c *gin.Context) {
	sess, ok := s.currentSession(c)
	if !ok {
		return
	}
	if id, err := recordID(sess.User); err == nil && s.monitor != nil {
		s.monitor.Stop(id)
	}
	if err := s.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		s.log.Warn("session delete failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated identity for the screen header.
func (s *Server) Me(c *gin.Context) {
	sess, ok := s.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": viewOf(sess.User)})
}

// Challenge returns the live digit positions for the attendance screen.
func (s *Server) Challenge(c *gin.Context) {
	sess, ok := s.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": sess.Challenge})
}

// Attend verifies a challenge answer and, on success, records the
// attendance event upstream. The challenge is spent by every attempt:
// a fresh pair is stored and returned no matter the outcome, so a seen
// pair can never be replayed.
func (s *Server) Attend(c *gin.Context) {
	sess, ok := s.currentSession(c)
	if !ok {
		return
	}

	var req struct {
		DigitA string `json:"digit_a"`
		DigitB string `json:"digit_b"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	spent := sess.Challenge
	next := s.regenerate(c, &sess)

	err := challenge.Verify(spent, sess.User.NationalID.String(), strings.TrimSpace(req.DigitA), strings.TrimSpace(req.DigitB))
	switch {
	case errors.Is(err, challenge.ErrInvalidStoredID):
		attendanceAttempts.WithLabelValues("invalid_id").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "challenge": next})
		return
	case errors.Is(err, challenge.ErrWrongDigits):
		attendanceAttempts.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "incorrect digits, new positions issued", "challenge": next})
		return
	case err != nil:
		attendanceAttempts.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed", "challenge": next})
		return
	}

	id, err := recordID(sess.User)
	if err != nil {
		attendanceAttempts.WithLabelValues("invalid_id").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid record id on file", "challenge": next})
		return
	}

	msg, err := s.dir.RecordAttendance(c.Request.Context(), id)
	if err != nil {
		// The positions were shown and answered; the challenge stays
		// spent even though the recording call failed.
		attendanceAttempts.WithLabelValues("transport_error").Inc()
		s.log.Warn("attendance recording failed", zap.Int64("record", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not record attendance", "challenge": next})
		return
	}

	attendanceAttempts.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, gin.H{"message": msg, "challenge": next})
}

// History serves the filtered, paginated, decorated attendance history.
// refresh=1 forces a fetch ahead of the next background tick.
func (s *Server) History(c *gin.Context) {
	sess, ok := s.currentSession(c)
	if !ok {
		return
	}

	id, err := recordID(sess.User)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid record id on file"})
		return
	}

	force := c.Query("refresh") == "1"
	rows, err := s.monitor.Get(c.Request.Context(), id, force)
	if err != nil {
		s.log.Warn("history fetch failed", zap.Int64("record", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch attendance history"})
		return
	}

	filter := history.Filter{
		Mode:  history.ParseMode(c.Query("mode")),
		Day:   c.Query("day"),
		Month: c.Query("month"),
		Year:  c.Query("year"),
	}
	page := intQuery(c, "page", 1)
	size := intQuery(c, "page_size", s.pageSize)

	result := history.Paginate(history.Apply(rows, filter), page, size)
	c.JSON(http.StatusOK, gin.H{
		"mode":   string(filter.Mode),
		"result": result,
	})
}

// currentSession loads the session named by the bearer token, answering
// 401 itself when it is gone.
func (s *Server) currentSession(c *gin.Context) (session.Session, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return session.Session{}, false
	}
	sess, err := s.sessions.Get(c.Request.Context(), claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return session.Session{}, false
	}
	if err != nil {
		s.log.Error("session get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return session.Session{}, false
	}
	return sess, true
}

// regenerate stores a fresh challenge on the session and returns it.
func (s *Server) regenerate(c *gin.Context, sess *session.Session) challenge.Challenge {
	sess.Challenge = s.gen.New()
	if err := s.sessions.Put(c.Request.Context(), *sess); err != nil {
		s.log.Error("challenge rotation failed", zap.Error(err))
	}
	challengesIssued.Inc()
	return sess.Challenge
}

func recordID(u directory.User) (int64, error) {
	return strconv.ParseInt(u.Record.String(), 10, 64)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
