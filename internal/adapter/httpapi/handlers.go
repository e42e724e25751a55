package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authflow/internal/apperr"
	"authflow/internal/auth"
)

// bind decodes the JSON body into req and validates it with messages in
// the request locale.
func (s *Server) bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed request body", apperr.Internal(), apperr.WithCause(err))
	}
	trans := s.cat.Translator(s.cat.Locale(c.GetHeader("Accept-Language")))
	return auth.Validate(s.validate, req, trans)
}

func (s *Server) signUp(c *gin.Context) error {
	var req auth.SignUpRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

func (s *Server) validateSignUp(c *gin.Context) error {
	var req auth.SignUpRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.ValidateSignUp(c.Request.Context(), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

func (s *Server) signIn(c *gin.Context) error {
	var req auth.SignInRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.SignIn(c.Request.Context(), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

func (s *Server) social(c *gin.Context) error {
	var req auth.SocialRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	resp, err := s.svc.Social(c.Request.Context(), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

func (s *Server) requestPassword(c *gin.Context) error {
	var req auth.PasswordResetRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.RequestPasswordReset(c.Request.Context(), req); err != nil {
		return err
	}
	c.Status(http.StatusNoContent)
	return nil
}

func (s *Server) changePassword(c *gin.Context) error {
	var req auth.PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed request body", apperr.Internal(), apperr.WithCause(err))
	}
	if err := auth.CheckPasswordChange(req.Password, req.RepeatPassword); err != nil {
		return err
	}
	trans := s.cat.Translator(s.cat.Locale(c.GetHeader("Accept-Language")))
	if err := auth.Validate(s.validate, &req, trans); err != nil {
		return err
	}
	if err := s.svc.ChangePassword(c.Request.Context(), req); err != nil {
		return err
	}
	c.Status(http.StatusNoContent)
	return nil
}

func (s *Server) health(c *gin.Context) error {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
	return nil
}
