package handler

import (
	"net/http"

	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/api/middleware"
	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// AuthController exposes registration, token grants, password recovery,
// verification and group membership.
type AuthController struct {
	accounts ports.AccountService
	tokens   ports.TokenService
	v        *Validator
}

func NewAuthController(accounts ports.AccountService, tokens ports.TokenService, v *Validator) *AuthController {
	return &AuthController{accounts: accounts, tokens: tokens, v: v}
}

// Controller declares the endpoints served under /api/auth.
func (h *AuthController) Controller() route.Controller {
	return route.Controller{
		Name: "AuthController",
		Endpoints: []route.Endpoint{
			{Name: "register", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[registerRequest](h.v), h.register)},
			{Name: "token", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[tokenRequest](h.v), h.token)},
			{Name: "refreshToken", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[refreshTokenRequest](h.v), h.refreshToken)},
			{Name: "clientToken", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[clientTokenRequest](h.v), h.clientToken)},
			{Name: "checkToken", Method: http.MethodPost, PublicAccess: true, Stages: stages(h.checkToken)},
			{Name: "sessions", Method: http.MethodGet, Stages: stages(h.sessions)},
			{Name: "createClient", Method: http.MethodPost, Stages: stages(decode[createClientRequest](h.v), h.createClient)},
			{Name: "changeSecret", Method: http.MethodPost, Stages: stages(decode[changeSecretRequest](h.v), h.changeSecret)},
			{Name: "sendResetPasswordToken", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[contactRequest](h.v), h.sendResetPasswordToken)},
			{Name: "resetPassword", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[resetPasswordRequest](h.v), h.resetPassword)},
			{Name: "changePassword", Method: http.MethodPost, Stages: stages(decode[changePasswordRequest](h.v), h.changePassword)},
			{Name: "addUserToGroup", Method: http.MethodPost, Stages: stages(middleware.RequireAdmin(), decode[groupRequest](h.v), h.addUserToGroup)},
			{Name: "deleteUserFromGroup", Method: http.MethodPost, Stages: stages(middleware.RequireAdmin(), decode[groupRequest](h.v), h.deleteUserFromGroup)},
			{Name: "sendVerifyEmail", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[emailRequest](h.v), h.sendVerifyEmail)},
			{Name: "verifyEmail", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[verifyEmailRequest](h.v), h.verifyEmail)},
			{Name: "sendVerifySms", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[mobileRequest](h.v), h.sendVerifySms)},
			{Name: "verifyMobile", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[verifyMobileRequest](h.v), h.verifyMobile)},
			{Name: "oneTimePassword", Method: http.MethodPost, PublicAccess: true, Stages: stages(decode[oneTimePasswordRequest](h.v), h.oneTimePassword)},
		},
	}
}

func stages(s ...pipeline.Stage) []pipeline.Stage { return s }

// register creates a new account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      200   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthController) register(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*registerRequest)

	user, err := h.accounts.Register(c.Ctx(), ports.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		Mobile:    req.Mobile,
		IP:        c.Request.IP,
		UserAgent: c.Request.UserAgent,
	})
	if err != nil {
		next(err)
		return
	}
	next(registerResponse{Username: user.Username})
}

// token grants an access token for a username, email or mobile with its
// password or one-time password, or for a client with its secret.
//
// @Summary      Obtain an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      tokenRequest  true  "Grant"
// @Success      200   {object}  ports.LoginResult
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/token [post]
func (h *AuthController) token(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*tokenRequest)

	if domain.GrantType(req.GrantType) == domain.GrantClientCredentials {
		h.issueClientToken(c, next, req.ClientID, req.ClientSecret)
		return
	}

	if req.Username == "" && req.Mobile == "" {
		next(domain.Validation("username required"))
		return
	}
	if req.Password == "" && req.OneTimePassword == "" {
		next(domain.ErrPasswordRequired)
		return
	}

	res, err := h.accounts.Login(c.Ctx(), ports.LoginInput{
		Username:        req.Username,
		Mobile:          req.Mobile,
		CountryCode:     req.MobileCountryCode,
		Password:        req.Password,
		OneTimePassword: req.OneTimePassword,
		UserAgent:       c.Request.UserAgent,
	})
	if err != nil {
		next(err)
		return
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(res.GrantType)).Inc()
	next(res)
}

// refreshToken exchanges an access/refresh pair for a new token.
//
// @Summary      Refresh an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshTokenRequest  true  "Token pair"
// @Success      200   {object}  domain.Token
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/refreshtoken [post]
func (h *AuthController) refreshToken(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*refreshTokenRequest)

	tok, err := h.tokens.Refresh(c.Ctx(), req.AccessToken, req.RefreshToken, c.Request.UserAgent)
	if err != nil {
		next(err)
		return
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(tok.GrantType)).Inc()
	next(tok)
}

// clientToken grants a token to the owner of a client.
//
// @Summary      Obtain a client token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      clientTokenRequest  true  "Client credentials"
// @Success      200   {object}  domain.Token
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/clienttoken [post]
func (h *AuthController) clientToken(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*clientTokenRequest)
	h.issueClientToken(c, next, req.ClientID, req.ClientSecret)
}

func (h *AuthController) issueClientToken(c *pipeline.Context, next pipeline.Next, clientID, secret string) {
	tok, err := h.accounts.ClientToken(c.Ctx(), clientID, secret, c.Request.UserAgent)
	if err != nil {
		next(err)
		return
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.GrantClientCredentials)).Inc()
	next(tok)
}

// checkToken reports the stored token for access_token.
//
// @Summary      Inspect an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        access_token  formData  string  true  "Access token"
// @Success      200           {object}  domain.Token
// @Failure      401           {object}  errorResponse
// @Router       /auth/checktoken [post]
func (h *AuthController) checkToken(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	accessToken := c.Request.Field("access_token")
	if accessToken == "" {
		next(domain.ErrMissingToken)
		return
	}

	tok, err := h.tokens.Validate(c.Ctx(), accessToken)
	if err != nil {
		next(err)
		return
	}
	next(tok)
}

// sessions lists the tokens of the caller.
//
// @Summary      List sessions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Token
// @Failure      401  {object}  errorResponse
// @Router       /auth/sessions [get]
func (h *AuthController) sessions(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	tokens, err := h.tokens.Sessions(c.Ctx(), c.User.ID)
	if err != nil {
		next(err)
		return
	}
	next(tokens)
}

// createClient registers a client owned by the caller.
//
// @Summary      Create a client
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createClientRequest  true  "Client"
// @Success      200   {object}  domain.Client
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/createclient [post]
func (h *AuthController) createClient(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*createClientRequest)

	client, err := h.accounts.CreateClient(c.Ctx(), c.User, req.Name, req.Secret)
	if err != nil {
		next(err)
		return
	}
	next(client)
}

// changeSecret replaces the secret of a client owned by the caller.
//
// @Summary      Change a client secret
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changeSecretRequest  true  "New secret"
// @Success      202   {object}  messageResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/changesecret [post]
func (h *AuthController) changeSecret(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*changeSecretRequest)

	if err := h.accounts.ChangeClientSecret(c.Ctx(), c.User, req.ClientID, req.Secret); err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "secret changed")
}

// sendResetPasswordToken sends a password reset code by email or SMS.
//
// @Summary      Request a password reset code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  contactRequest  true  "Email or mobile"
// @Success      202
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/sendresetpasswordtoken [post]
func (h *AuthController) sendResetPasswordToken(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*contactRequest)

	err := h.accounts.SendPasswordResetToken(c.Ctx(), ports.ContactInput{
		Email:     req.Email,
		Mobile:    req.Mobile,
		IP:        c.Request.IP,
		UserAgent: c.Request.UserAgent,
	})
	if err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "")
}

// resetPassword redeems a reset code and sets a new password.
//
// @Summary      Reset a password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Reset code and new password"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/resetpassword [post]
func (h *AuthController) resetPassword(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*resetPasswordRequest)

	err := h.accounts.ResetPassword(c.Ctx(), ports.ResetPasswordInput{
		ContactInput: ports.ContactInput{
			Email:     req.Email,
			Mobile:    req.Mobile,
			IP:        c.Request.IP,
			UserAgent: c.Request.UserAgent,
		},
		Code:     req.Code,
		Password: req.Password,
	})
	if err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "password changed")
}

// changePassword sets the caller's password, or another user's for admins.
//
// @Summary      Change a password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "New password"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/changepassword [post]
func (h *AuthController) changePassword(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*changePasswordRequest)

	err := h.accounts.ChangePassword(c.Ctx(), ports.ChangePasswordInput{
		Actor:        c.User,
		TargetUserID: req.User,
		Password:     req.Password,
		IP:           c.Request.IP,
		UserAgent:    c.Request.UserAgent,
	})
	if err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "password changed")
}

// addUserToGroup
//
// @Summary      Add a user to a group
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      groupRequest  true  "User and group"
// @Success      202   {object}  messageResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/addusertogroup [post]
func (h *AuthController) addUserToGroup(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*groupRequest)

	if err := h.accounts.AddUserToGroup(c.Ctx(), req.User, req.Group); err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "added to group")
}

// deleteUserFromGroup
//
// @Summary      Remove a user from a group
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      groupRequest  true  "User and group"
// @Success      202   {object}  messageResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/deleteuserfromgroup [post]
func (h *AuthController) deleteUserFromGroup(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*groupRequest)

	if err := h.accounts.DeleteUserFromGroup(c.Ctx(), req.User, req.Group); err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "removed from group")
}

// sendVerifyEmail
//
// @Summary      Send an email verification code
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        body  body      emailRequest  true  "Email"
// @Success      200   {object}  domain.Delivery
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/sendverifyemail [post]
func (h *AuthController) sendVerifyEmail(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*emailRequest)

	d, err := h.accounts.SendVerifyEmail(c.Ctx(), req.Email)
	if err != nil {
		next(err)
		return
	}
	next(d)
}

// verifyEmail
//
// @Summary      Confirm an email address
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        body  body      verifyEmailRequest  true  "Email and code"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/verifyemail [post]
func (h *AuthController) verifyEmail(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*verifyEmailRequest)

	if err := h.accounts.VerifyEmail(c.Ctx(), req.Email, req.Code); err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "email verified")
}

// sendVerifySms
//
// @Summary      Send an SMS verification code
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        body  body      mobileRequest  true  "Mobile"
// @Success      200   {object}  domain.Delivery
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/sendverifysms [post]
func (h *AuthController) sendVerifySms(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*mobileRequest)

	d, err := h.accounts.SendVerifySms(c.Ctx(), req.Mobile)
	if err != nil {
		next(err)
		return
	}
	next(d)
}

// verifyMobile
//
// @Summary      Confirm a mobile number
// @Tags         verification
// @Accept       json
// @Produce      json
// @Param        body  body      verifyMobileRequest  true  "Mobile and code"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/verifymobile [post]
func (h *AuthController) verifyMobile(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*verifyMobileRequest)

	if err := h.accounts.VerifyMobile(c.Ctx(), req.Mobile, req.Code); err != nil {
		next(err)
		return
	}
	done(http.StatusAccepted, "mobile verified")
}

// oneTimePassword sends a one-time password, registering the mobile number
// on first use.
//
// @Summary      Request a one-time password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      oneTimePasswordRequest  true  "Mobile"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/onetimepassword [post]
func (h *AuthController) oneTimePassword(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
	req := c.Value().(*oneTimePasswordRequest)

	err := h.accounts.SendOneTimePassword(c.Ctx(), ports.OneTimePasswordInput{
		Mobile:      req.Mobile,
		CountryCode: req.MobileCountryCode,
		IP:          c.Request.IP,
		UserAgent:   c.Request.UserAgent,
	})
	if err != nil {
		next(err)
		return
	}
	done(http.StatusOK, "one-time password sent")
}
