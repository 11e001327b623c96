package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/pkg/response"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      uint64 `json:"user_id"`
	Role        string `json:"role"`
}

// @Summary      Login
// @Description  Exchanges email and password for a bearer token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body handlers.loginRequest true "Credentials"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/auth/login [post]
func ApiLogin(ident *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		user, err := ident.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid email or password"))
			return
		}
		token, err := ident.IssueAccessToken(user.ID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(loginResponse{
			AccessToken: token,
			UserID:      user.ID,
			Role:        string(user.Role),
		}))
	}
}

type setPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Set password
// @Description  Completes the password-setup link emailed to approved applicants.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body handlers.setPasswordRequest true "Setup token and new password"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/auth/set-password [post]
func ApiSetPassword(ident *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		userID, err := ident.VerifyPasswordSetupToken(req.Token)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid or expired setup link"))
			return
		}
		if err := ident.SetPassword(c.Request.Context(), userID, req.Password); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterAuthRoutes(r gin.IRouter, ident *identity.Service) {
	r.POST("/login", ApiLogin(ident))
	r.POST("/set-password", ApiSetPassword(ident))
}
