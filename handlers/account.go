package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shop-svc/auth"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const recentOrdersLimit = 5

type AccountHandler struct {
	users  *repository.UserRepository
	orders *repository.OrderRepository
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAccountHandler(users *repository.UserRepository, orders *repository.OrderRepository, tokens *auth.TokenManager, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		users:  users,
		orders: orders,
		tokens: tokens,
		logger: logger,
	}
}

func (h *AccountHandler) Register(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Register")
	defer span.End()

	var req models.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		formErrors(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(c, h.logger, span, "Failed to hash password", err)
		return
	}

	user := models.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := h.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"errors": gin.H{"username": "A user with that username or email already exists."}})
			return
		}
		internalError(c, h.logger, span, "Failed to create user", err)
		return
	}

	h.logger.Info("User registered",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", user.ID),
		zap.String("username", user.Username),
	)
	redirect(c, "/accounts/login", levelSuccess,
		fmt.Sprintf("Account created for %s! You can now log in.", user.Username))
}

func (h *AccountHandler) Login(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Login")
	defer span.End()

	invalid := Flash{Level: levelError, Message: "Invalid username or password."}

	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		render(c, http.StatusUnauthorized, gin.H{}, invalid)
		return
	}

	user, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		internalError(c, h.logger, span, "Failed to fetch user", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		render(c, http.StatusUnauthorized, gin.H{}, invalid)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		internalError(c, h.logger, span, "Failed to generate token", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookie, token, int(h.tokens.TTL().Seconds()), "/", "", false, true)

	h.logger.Info("User logged in",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", user.ID),
	)
	render(c, http.StatusOK, gin.H{
		"token":    token,
		"user":     user,
		"redirect": nextPage(c.Query("next")),
	}, Flash{Level: levelInfo, Message: fmt.Sprintf("You are now logged in as %s.", user.Username)})
}

func (h *AccountHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", false, true)
	redirect(c, "/products", levelInfo, "You have successfully logged out.")
}

func (h *AccountHandler) Profile(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Profile")
	defer span.End()

	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		redirect(c, "/accounts/login?next=/accounts/profile", levelError, "Please log in to view your profile.")
		return
	}

	user, err := h.users.GetByID(ctx, identity.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		redirect(c, "/accounts/login", levelError, "Please log in to view your profile.")
		return
	}
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch user", err)
		return
	}

	orders, err := h.orders.ListByUser(ctx, user.ID, recentOrdersLimit)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch orders", err)
		return
	}

	render(c, http.StatusOK, gin.H{
		"user":          user,
		"recent_orders": orders,
	})
}

// nextPage only follows local paths after login.
func nextPage(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/products"
	}
	return next
}
