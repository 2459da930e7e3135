package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/booking"
	"github.com/bobuk/gcalbook/internal/calendar"
	"github.com/bobuk/gcalbook/internal/confirm"
	"github.com/bobuk/gcalbook/internal/timeparse"
)

type createRequest struct {
	SessionID       string `json:"session_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Service         string `json:"service"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Now             string `json:"now"`
}

type moveRequest struct {
	SessionID       string `json:"session_id"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Now             string `json:"now"`
}

type cancelRequest struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Now       string `json:"now"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Now      string `json:"now"`
}

type slotsResponse struct {
	Date  string               `json:"date"`
	Slots []calendar.TimeRange `json:"slots"`
}

type parseResponse struct {
	DateTime time.Time `json:"datetime"`
	Date     string    `json:"date"`
	Time     string    `json:"time,omitempty"`
}

func (s *Server) createAppointment(c *gin.Context) {
	var req createRequest
	if !s.bind(c, &req) {
		return
	}
	now, ok := s.reference(c, req.Now)
	if !ok {
		return
	}
	res, err := s.engine.Create(c.Request.Context(), booking.CreateRequest{
		SessionID: req.SessionID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Service:   req.Service,
		Date:      req.Date,
		Time:      req.Time,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Now:       now,
	})
	s.respond(c, res, err)
}

func (s *Server) moveAppointment(c *gin.Context) {
	var req moveRequest
	if !s.bind(c, &req) {
		return
	}
	now, ok := s.reference(c, req.Now)
	if !ok {
		return
	}
	res, err := s.engine.Move(c.Request.Context(), booking.MoveRequest{
		SessionID: req.SessionID,
		Email:     req.Email,
		Phone:     req.Phone,
		Date:      req.Date,
		Time:      req.Time,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Now:       now,
	})
	s.respond(c, res, err)
}

func (s *Server) cancelAppointment(c *gin.Context) {
	var req cancelRequest
	if !s.bind(c, &req) {
		return
	}
	now, ok := s.reference(c, req.Now)
	if !ok {
		return
	}
	res, err := s.engine.Cancel(c.Request.Context(), booking.CancelRequest{
		SessionID: req.SessionID,
		Email:     req.Email,
		Phone:     req.Phone,
		Now:       now,
	})
	s.respond(c, res, err)
}

func (s *Server) decideTicket(c *gin.Context) {
	var req decisionRequest
	if !s.bind(c, &req) {
		return
	}
	decision, err := confirm.ParseDecision(req.Decision)
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_decision", err.Error())
		return
	}
	now, ok := s.reference(c, req.Now)
	if !ok {
		return
	}
	res, err := s.engine.ResolveConfirmation(c.Request.Context(), booking.ResolveRequest{
		TicketID: c.Param("id"),
		Decision: decision,
		Now:      now,
	})
	s.respond(c, res, err)
}

func (s *Server) listSlots(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		abortError(c, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return
	}
	now, ok := s.reference(c, c.Query("now"))
	if !ok {
		return
	}
	var d time.Duration
	if minutes := c.Query("duration_minutes"); minutes != "" {
		parsed, err := time.ParseDuration(minutes + "m")
		if err != nil || parsed <= 0 {
			abortError(c, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
			return
		}
		d = parsed
	}

	slots, err := s.engine.DaySlots(c.Request.Context(), date, d, now)
	var pe *timeparse.ParseError
	if errors.As(err, &pe) {
		abortError(c, http.StatusUnprocessableEntity, string(booking.ReasonParseError), pe.Error())
		return
	}
	if err != nil {
		s.logger.Error("listing slots failed", zap.Error(err))
		abortError(c, http.StatusServiceUnavailable, string(booking.ReasonBackendError), "the calendar is not reachable right now")
		return
	}

	day, _ := s.engine.Parser().ParseDate(date, now)
	if slots == nil {
		slots = []calendar.TimeRange{}
	}
	c.JSON(http.StatusOK, slotsResponse{Date: day.Format(timeparse.DateLayout), Slots: slots})
}

// parseExpression validates a date (and optional time) for the dialogue
// layer without touching the calendar.
func (s *Server) parseExpression(c *gin.Context) {
	now, ok := s.reference(c, c.Query("now"))
	if !ok {
		return
	}
	parser := s.engine.Parser()
	date, clock, q := c.Query("date"), c.Query("time"), c.Query("q")

	var t time.Time
	var err error
	switch {
	case q != "":
		t, err = parser.Parse(q, now)
	case date != "" && clock != "":
		t, err = parser.Combine(date, clock, now)
	case date != "":
		t, err = parser.ParseDate(date, now)
	default:
		abortError(c, http.StatusBadRequest, "missing_expression", "provide q, or date with an optional time")
		return
	}
	var pe *timeparse.ParseError
	if errors.As(err, &pe) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":  responseError{Code: string(booking.ReasonParseError), Message: pe.Error()},
			"reason": pe.Reason,
		})
		return
	}
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_expression", err.Error())
		return
	}

	res := parseResponse{DateTime: t, Date: t.Format(timeparse.DateLayout)}
	if q != "" || clock != "" {
		res.Time = t.Format(timeparse.ClockLayout)
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

// reference resolves the request's reference instant: the body field,
// then the header, then the server clock.
func (s *Server) reference(c *gin.Context, fromBody string) (time.Time, bool) {
	raw := strings.TrimSpace(fromBody)
	if raw == "" {
		raw = strings.TrimSpace(c.GetHeader(ReferenceHeader))
	}
	if raw == "" {
		return s.clock(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_reference_time", "now must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) respond(c *gin.Context, res booking.Result, err error) {
	if err != nil {
		s.logger.Error("booking operation failed", zap.Error(err))
	}
	c.JSON(statusCode(res), res)
}

func statusCode(res booking.Result) int {
	switch res.Status {
	case booking.StatusApproved:
		return http.StatusOK
	case booking.StatusPending:
		return http.StatusAccepted
	}
	switch res.Reason {
	case booking.ReasonMissingFields, booking.ReasonParseError, booking.ReasonUnknownService,
		booking.ReasonPastSlot, booking.ReasonOutOfHours:
		return http.StatusUnprocessableEntity
	case booking.ReasonNotFound:
		return http.StatusNotFound
	case booking.ReasonAmbiguous, booking.ReasonNoAvailability, booking.ReasonAlreadyResolved:
		return http.StatusConflict
	case booking.ReasonExpired:
		return http.StatusGone
	case booking.ReasonBackendError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}
