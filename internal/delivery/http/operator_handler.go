package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"trailbot/internal/domain"
	"trailbot/internal/middleware"
	"trailbot/internal/session"
)

// OperatorHandler serves the operator API: login, state inspection and
// the pause gate. It reads runtime snapshots and the audit log; position
// mutation stays with the session driver.
type OperatorHandler struct {
	runtime      *session.Runtime
	positions    domain.PositionRepository
	username     string
	passwordHash string
	jwtSecret    string
}

// NewOperatorHandler creates a new OperatorHandler. passwordHash is a
// bcrypt hash of the operator password.
func NewOperatorHandler(runtime *session.Runtime, positions domain.PositionRepository, username, passwordHash, jwtSecret string) *OperatorHandler {
	return &OperatorHandler{
		runtime:      runtime,
		positions:    positions,
		username:     username,
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
	}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string `json:"token"`
}

// Login authenticates the operator.
// POST /api/login
func (h *OperatorHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	if req.Username == "" || req.Password == "" {
		return BadRequestResponse(c, "Username and password are required")
	}
	if req.Username != h.username {
		return UnauthorizedResponse(c, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		return UnauthorizedResponse(c, "Invalid credentials")
	}
	token, err := middleware.GenerateJWT(req.Username, h.jwtSecret)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to issue token", err)
	}
	return SuccessResponse(c, LoginResponse{Token: token})
}

// StatusOutput is the session state snapshot.
type StatusOutput struct {
	Paused    bool                 `json:"paused"`
	StartedAt time.Time            `json:"started_at"`
	Pairs     []session.PairStatus `json:"pairs"`
}

// GetStatus returns the session state.
// GET /api/status
func (h *OperatorHandler) GetStatus(c echo.Context) error {
	return SuccessResponse(c, StatusOutput{
		Paused:    h.runtime.Paused(),
		StartedAt: h.runtime.StartedAt(),
		Pairs:     h.runtime.Status(),
	})
}

// GetPositions returns the active positions.
// GET /api/positions
func (h *OperatorHandler) GetPositions(c echo.Context) error {
	return SuccessResponse(c, h.runtime.Positions())
}

// GetClosedPositions returns the audit log for the last N days
// (query parameter "days", default 30).
// GET /api/positions/closed
func (h *OperatorHandler) GetClosedPositions(c echo.Context) error {
	days := 30
	if d := c.QueryParam("days"); d != "" {
		if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil || days <= 0 {
			return BadRequestResponse(c, "Invalid days parameter")
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	since := time.Now().AddDate(0, 0, -days)
	closed, err := h.positions.ClosedSince(ctx, since)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load closed positions", err)
	}
	return SuccessResponse(c, closed)
}

// Pause suspends new position creation.
// POST /api/pause
func (h *OperatorHandler) Pause(c echo.Context) error {
	h.runtime.SetPaused(true)
	return SuccessMessageResponse(c, "Trading paused", nil)
}

// Resume lifts the pause gate.
// POST /api/resume
func (h *OperatorHandler) Resume(c echo.Context) error {
	h.runtime.SetPaused(false)
	return SuccessMessageResponse(c, "Trading resumed", nil)
}
