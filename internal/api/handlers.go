package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/reconcile"
)

// ConfirmRequest is the body of POST /v1/rewards/confirm.
type ConfirmRequest struct {
	ConfirmationID string `json:"confirmation_id" binding:"omitempty,max=128"`
	UserID         string `json:"user_id" binding:"required,userid"`
	RewardType     string `json:"reward_type" binding:"omitempty,rewardtype"`
	IP             string `json:"ip" binding:"omitempty,max=256"`
	DeviceID       string `json:"device_id" binding:"omitempty,max=256"`
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	ID         string `json:"id" binding:"omitempty,userid"`
	ReferrerID string `json:"referrer_id" binding:"omitempty,userid"`
}

// SetLevelRequest is the body of PUT /v1/users/:id/level.
type SetLevelRequest struct {
	Level int `json:"level" binding:"required,min=1"`
}

// ErrorResponse is the JSON error body of the account endpoints.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// SweepResponse is the body of POST /v1/users/:id/sweep.
type SweepResponse struct {
	Report   reconcile.Report `json:"report"`
	Complete bool             `json:"complete"`
}

// handleConfirm handles POST /v1/rewards/confirm.
//
// Responses are deliberately opaque: 200 "OK" for any committed or
// duplicate confirmation, 400 "Bad Request" for malformed input, 500 "Error"
// for everything else, including unknown users.
func (s *Server) handleConfirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid confirmation", "error", err, "fields", fieldErrors(err))
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	_, err := s.app.Settler.Settle(c.Request.Context(), model.Confirmation{
		ConfirmationID: req.ConfirmationID,
		UserID:         req.UserID,
		RewardType:     req.RewardType,
		IP:             req.IP,
		DeviceID:       req.DeviceID,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "Error")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !s.bind(c, &req) {
		return
	}

	u, err := s.app.Accounts.Create(c.Request.Context(), account.NewUser{ID: req.ID, ReferrerID: req.ReferrerID})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) handleGetUser(c *gin.Context) {
	u, err := s.app.Accounts.User(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleSetLevel(c *gin.Context) {
	var req SetLevelRequest
	if !s.bind(c, &req) {
		return
	}

	u, err := s.app.Accounts.SetLevel(c.Request.Context(), c.Param("id"), req.Level)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleEarnings(c *gin.Context) {
	logs, err := s.app.Accounts.Earnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleAlerts(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.app.Accounts.User(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	alerts, err := s.app.Accounts.Alerts(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleSweep(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	rep, err := s.app.Reconciler.Sweep(ctx, id)
	switch {
	case err == nil:
		// A manual sweep supersedes any queued task for the user.
		if err := s.app.Store.CompleteSweep(ctx, id); err != nil {
			s.logger.Warn("failed to clear sweep task", "user", id, "error", err)
		}
		c.JSON(http.StatusOK, SweepResponse{Report: rep, Complete: true})
	case reconcile.IsPartial(err):
		c.JSON(http.StatusOK, SweepResponse{Report: rep, Complete: false})
	default:
		s.fail(c, err)
	}
}

// bind decodes and validates the JSON body, writing a 400 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request body",
			Code:   "INVALID_REQUEST",
			Fields: fieldErrors(err),
		})
		return false
	}
	return true
}

// fail maps service errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		status, code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, ledger.ErrUserExists):
		status, code = http.StatusConflict, "USER_EXISTS"
	case errors.Is(err, account.ErrUnknownReferrer):
		status, code = http.StatusUnprocessableEntity, "UNKNOWN_REFERRER"
	case errors.Is(err, account.ErrSelfReferral):
		status, code = http.StatusUnprocessableEntity, "SELF_REFERRAL"
	case errors.Is(err, account.ErrLevelDecrease):
		status, code = http.StatusConflict, "LEVEL_DECREASE"
	case errors.Is(err, reconcile.ErrNotEligible):
		status, code = http.StatusConflict, "NOT_ELIGIBLE"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}
