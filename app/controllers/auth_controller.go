package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Eziox-Development/eziox-web-sub001/app/models"
	"github.com/Eziox-Development/eziox-web-sub001/app/repository"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/entitlements"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/hcaptcha"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/mail"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/session"
	"github.com/Eziox-Development/eziox-web-sub001/internal/pkg/usercontext"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

// HandleAuthRegister creates an inactive account and mails the activation
// link. Username and email collisions answer 409.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if hcaptcha.Enabled() {
		if ok, err := hcaptcha.Verify(req.CaptchaToken); !ok {
			log.Warnf("[Auth] Captcha verification failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Captcha verification failed"})
		}
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if existing, err := repo.GetByUsername(req.Username); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Username is already taken"})
	}
	if existing, err := repo.GetByEmail(req.Email); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Email is already registered"})
	}

	user, err := models.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid registration data"})
	}
	if err := user.GenerateActivationToken(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not create account"})
	}
	if err := repo.Create(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not create account"})
	}

	go sendActivationMail(user.Email, user.Username, user.ActivationToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.ID, "username": user.Username})
}

// HandleAuthActivate activates an account by token.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "token is required"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(token)
	if err != nil || user == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Invalid activation token"})
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not activate account"})
	}
	return c.JSON(fiber.Map{"activated": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthLogin verifies credentials and establishes the session. The
// current tier is cached in the session so feature gates skip a user query.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(req.Email)
	if err != nil || user == nil || !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account is not activated"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Session unavailable"})
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Username)
	sess.Set(usercontext.KeyIsAdmin, user.IsAdmin())
	sess.Set(usercontext.KeyUserTier, string(entitlements.ParseTier(user.Tier)))
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Session unavailable"})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repo.Update(user); err != nil {
		log.Warnf("[Auth] Could not record login time for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"tier":     entitlements.ParseTier(user.Tier),
		"is_admin": user.IsAdmin(),
	})
}

// HandleAuthLogout destroys the session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Warnf("[Auth] Could not destroy session: %v", err)
		}
	}
	return c.JSON(fiber.Map{"logged_out": true})
}

func sendActivationMail(to, username, token string) {
	link := fmt.Sprintf("%s/activate?token=%s", publicBaseURL(), token)
	body := fmt.Sprintf("<p>Hi %s,</p><p>confirm your account: <a href=\"%s\">%s</a></p>", username, link, link)
	if err := mail.SendMail(to, "Activate your account", body); err != nil {
		log.Errorf("[Auth] Could not send activation mail to %s: %v", to, err)
	}
}
