package manager

import (
	"net/http"

	"github.com/chatmesh/chatmesh/internal/rpc"
	"github.com/chatmesh/chatmesh/internal/token"
)

// Routes registers every ChannelService/UserService HTTP endpoint plus
// the Report websocket endpoint on mux. pepper is the deployment-wide
// password pepper from config.
func (m *Manager) Routes(mux *http.ServeMux, pepper string) {
	mux.HandleFunc("/v1/register", m.handleRegister(pepper))
	mux.HandleFunc("/v1/login", m.handleLogin(pepper))
	mux.HandleFunc("/v1/channels/list", m.authenticated(m.handleList))
	mux.HandleFunc("/v1/channels/create", m.authenticated(m.handleCreate))
	mux.HandleFunc("/v1/channels/delete", m.authenticated(m.handleDelete))
	mux.HandleFunc("/v1/channels/listen", m.authenticated(m.handleListen))
	mux.HandleFunc("/v1/report", m.HandleReport)
	mux.HandleFunc("/healthz", m.handleHealth)
}

// authenticated wraps next so it only runs once the request's user token
// has been verified, passing the verified claims to next as an argument.
func (m *Manager) authenticated(next func(http.ResponseWriter, *http.Request, *token.UserClaims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := rpc.BearerToken(r)
		if err != nil {
			rpc.WriteError(w, err)
			return
		}
		claims, err := m.Tokens.VerifyUserToken(raw)
		if err != nil {
			rpc.WriteError(w, err)
			return
		}
		next(w, r, claims)
	}
}

type registerRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (m *Manager) handleRegister(pepper string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := rpc.DecodeJSON(r, &req); err != nil {
			rpc.WriteError(w, err)
			return
		}
		if err := m.Register(r.Context(), pepper, req.UserID, req.Password, req.Name); err != nil {
			rpc.WriteError(w, err)
			return
		}
		rpc.WriteJSON(w, http.StatusCreated, struct{}{})
	}
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (m *Manager) handleLogin(pepper string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := rpc.DecodeJSON(r, &req); err != nil {
			rpc.WriteError(w, err)
			return
		}
		result, err := m.Login(r.Context(), pepper, req.UserID, req.Password)
		if err != nil {
			rpc.WriteError(w, err)
			return
		}
		rpc.WriteJSON(w, http.StatusOK, result)
	}
}

type listRequest struct {
	ID int64 `json:"id"`
}

func (m *Manager) handleList(w http.ResponseWriter, r *http.Request, _ *token.UserClaims) {
	var req listRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, err)
		return
	}
	channels, err := m.List(r.Context(), req.ID)
	if err != nil {
		rpc.WriteError(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, struct {
		Channels []ChannelView `json:"channels"`
	}{Channels: channels})
}

type createRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

func (m *Manager) handleCreate(w http.ResponseWriter, r *http.Request, claims *token.UserClaims) {
	var req createRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, err)
		return
	}
	channel, err := m.Create(r.Context(), req.Name, req.Limit, claims.UserID)
	if err != nil {
		rpc.WriteError(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, channel)
}

type deleteRequest struct {
	ID int64 `json:"id"`
}

func (m *Manager) handleDelete(w http.ResponseWriter, r *http.Request, claims *token.UserClaims) {
	var req deleteRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, err)
		return
	}
	if err := m.Delete(r.Context(), req.ID, claims.UserID); err != nil {
		rpc.WriteError(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, struct{}{})
}

type listenRequest struct {
	ID int64 `json:"id"`
}

func (m *Manager) handleListen(w http.ResponseWriter, r *http.Request, claims *token.UserClaims) {
	var req listenRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, err)
		return
	}
	result, err := m.Listen(r.Context(), claims.UserID, req.ID)
	if err != nil {
		rpc.WriteError(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, result)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	rpc.WriteJSON(w, http.StatusOK, struct {
		Status  string `json:"status"`
		Workers int    `json:"workers"`
	}{Status: "ok", Workers: m.Registry.WorkerCount()})
}
