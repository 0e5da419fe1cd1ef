package httpapi

import (
	"net/http"

	challengeAuth "github.com/MrEthical07/challengeAuth"
)

type initLoginRequest struct {
	Username string `json:"username" validate:"required"`
}

type verifyChallengeRequest struct {
	SessionID          string `json:"sessionId" validate:"required"`
	ProcessedChallenge string `json:"processedChallenge" validate:"required"`
	RememberMe         bool   `json:"rememberMe"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type confirmMFARequest struct {
	Token string `json:"token" validate:"required,numeric"`
}

type verifyMFARequest struct {
	Key        string `json:"key" validate:"required"`
	Token      string `json:"token" validate:"required,numeric"`
	RememberMe bool   `json:"rememberMe"`
}

func (a *API) initLogin(w http.ResponseWriter, r *http.Request) {
	var req initLoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	challenge, err := a.engine.InitLogin(r.Context(), req.Username)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, map[string]any{
		"sessionId": challenge.SessionID,
		"iv":        challenge.IV,
		"challenge": challenge.Challenge,
		"salt":      challenge.Salt,
	})
}

func (a *API) verifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req verifyChallengeRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.VerifyChallenge(r.Context(), req.SessionID, req.ProcessedChallenge, req.RememberMe)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	if _, err := a.engine.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeUserCreated, nil)
}

func (a *API) sendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.SendVerificationEmail(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeVerificationEmailSent, nil)
}

func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeEmailConfirmed, nil)
}

func (a *API) askMFAActivation(w http.ResponseWriter, r *http.Request) {
	principal, _ := challengeAuth.PrincipalFromContext(r.Context())
	activation, err := a.engine.AskMFAActivation(r.Context(), principal.IdentityID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, map[string]any{
		"qrCodeUrl":  activation.QRCodeURL,
		"otpauthUrl": activation.URI,
		"secret":     activation.SecretBase32,
	})
}

func (a *API) confirmMFAActivation(w http.ResponseWriter, r *http.Request) {
	var req confirmMFARequest
	if !a.decode(w, r, &req) {
		return
	}
	principal, _ := challengeAuth.PrincipalFromContext(r.Context())
	if err := a.engine.ConfirmMFAActivation(r.Context(), principal.IdentityID, req.Token); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeMFAActivated, nil)
}

func (a *API) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.VerifyMFA(r.Context(), req.Key, req.Token, req.RememberMe)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeLoginResult(w, res)
}

func (a *API) removeMFA(w http.ResponseWriter, r *http.Request) {
	principal, _ := challengeAuth.PrincipalFromContext(r.Context())
	if err := a.engine.RemoveMFA(r.Context(), principal.IdentityID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeMFADeactivated, nil)
}

// writeLoginResult answers 200 for every handshake outcome; only
// AUTHENTICATED carries a token.
func writeLoginResult(w http.ResponseWriter, res *challengeAuth.LoginResult) {
	payload := map[string]any{}
	if res.Identity != nil {
		payload["user"] = res.Identity
	}
	if res.Token != "" {
		payload["token"] = res.Token
	}
	if res.ExpiresAt != nil {
		payload["expiresAt"] = res.ExpiresAt
	}
	if res.MFAKey != "" {
		payload["key"] = res.MFAKey
	}
	writeCode(w, http.StatusOK, res.Code, payload)
}
