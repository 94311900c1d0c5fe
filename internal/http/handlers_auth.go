package http

import (
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/log"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, http.StatusCreated, s.authSignUp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleCredentials(w, r, http.StatusOK, s.authLogin)
}

func (s *Server) authSignUp(r *http.Request, req credentialsRequest) (auth.Token, error) {
	return s.auth.SignUp(r.Context(), req.Email, req.Password)
}

func (s *Server) authLogin(r *http.Request, req credentialsRequest) (auth.Token, error) {
	return s.auth.Login(r.Context(), req.Email, req.Password)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request, status int, do func(*http.Request, credentialsRequest) (auth.Token, error)) {
	if s.auth == nil {
		writeError(w, r, errAuthDisabled)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tok, err := do(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Signed in", log.FieldUserID, tok.Session.UserID)
	writeJSON(w, status, tok)
}

// handleMagicLink always answers 202 for well-formed addresses so the
// endpoint does not reveal which emails have accounts.
func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, r, errAuthDisabled)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.auth.RequestMagicLink(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	_ = NewJSONResponse().Status(http.StatusAccepted).Message("If the address is valid, a sign-in link is on its way.").Send(w)
}

// handleRedeem accepts the token as ?token= (the emailed link) or as a JSON
// body.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, r, errAuthDisabled)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		token = req.Token
	}
	tok, err := s.auth.RedeemMagicLink(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, errAuthRequired)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"watching": s.sync != nil && s.sync.Watching(sess.UserID),
	})
}
