package handlers

import (
	"errors"
	"net/http"
	"strings"

	"skinscope/internal/common"
	"skinscope/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	msgFillAllFields      = "Please fill in all fields."
	msgPasswordsMismatch  = "Passwords do not match."
	msgEmailRegistered    = "Email already registered. Please log in."
	msgInvalidCredentials = "Invalid email or password."
	msgTooManyAttempts    = "Too many attempts. Please try again later."
	msgServerError        = "Something went wrong. Please try again later."
)

// ShowLoginPage отображает страницу входа. Уже вошедших отправляет на /home.
func (h *Handler) ShowLoginPage(c *gin.Context) {
	if _, ok := middleware.CurrentIdentity(c); ok {
		c.Redirect(http.StatusFound, "/home")
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{"title": "Login"})
}

// ShowRegisterPage отображает страницу регистрации. Уже вошедших отправляет на /home.
func (h *Handler) ShowRegisterPage(c *gin.Context) {
	if _, ok := middleware.CurrentIdentity(c); ok {
		c.Redirect(http.StatusFound, "/home")
		return
	}
	c.HTML(http.StatusOK, "register.html", gin.H{"title": "Register"})
}

// HandleLogin обрабатывает форму входа.
// Неизвестный email и неверный пароль дают одно и то же сообщение.
func (h *Handler) HandleLogin(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	renderLoginWithError := func(status int, message string) {
		c.HTML(status, "login.html", gin.H{
			"title": "Login",
			"error": message,
			"email": email,
		})
	}

	if email == "" || password == "" {
		renderLoginWithError(http.StatusBadRequest, msgFillAllFields)
		return
	}

	user, err := h.Accounts.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			renderLoginWithError(http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		log.Error().Err(err).Msg("Ошибка проверки учётных данных")
		renderLoginWithError(http.StatusInternalServerError, msgServerError)
		return
	}

	if err := h.startSession(c, user); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Ошибка сохранения сессии после входа")
		renderLoginWithError(http.StatusInternalServerError, msgServerError)
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("Пользователь вошел в систему")
	c.Redirect(http.StatusFound, "/home")
}

// HandleRegister обрабатывает форму регистрации. После успешной регистрации пользователь сразу вошёл.
func (h *Handler) HandleRegister(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	confirm := c.PostForm("confirm")

	renderRegisterWithError := func(status int, message string) {
		c.HTML(status, "register.html", gin.H{
			"title": "Register",
			"error": message,
			"name":  name,
			"email": email,
		})
	}

	if name == "" || email == "" || password == "" || confirm == "" {
		renderRegisterWithError(http.StatusBadRequest, msgFillAllFields)
		return
	}
	if password != confirm {
		renderRegisterWithError(http.StatusBadRequest, msgPasswordsMismatch)
		return
	}

	user, err := h.Accounts.Register(c.Request.Context(), name, email, password)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			renderRegisterWithError(http.StatusConflict, msgEmailRegistered)
			return
		}
		log.Error().Err(err).Msg("Ошибка создания пользователя")
		renderRegisterWithError(http.StatusInternalServerError, msgServerError)
		return
	}

	if err := h.startSession(c, user); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Ошибка сохранения сессии после регистрации")
		renderRegisterWithError(http.StatusInternalServerError, msgServerError)
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("Пользователь зарегистрирован")
	c.Redirect(http.StatusFound, "/home")
}

// HandleLogout сбрасывает сессию и отправляет на страницу входа.
func (h *Handler) HandleLogout(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)

	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		log.Error().Err(err).Int64("user_id", id.UserID).Msg("Ошибка сохранения сессии после выхода")
	} else {
		log.Info().Int64("user_id", id.UserID).Msg("Пользователь вышел из системы")
	}
	c.Redirect(http.StatusFound, middleware.LoginPath)
}

// LoginRateLimited и RegisterRateLimited отвечают на превышение лимита попыток.
func LoginRateLimited(c *gin.Context) {
	c.HTML(http.StatusTooManyRequests, "login.html", gin.H{"title": "Login", "error": msgTooManyAttempts})
}

func RegisterRateLimited(c *gin.Context) {
	c.HTML(http.StatusTooManyRequests, "register.html", gin.H{"title": "Register", "error": msgTooManyAttempts})
}
