// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/bingo/internal/auth"
	"github.com/jason-s-yu/bingo/internal/lobby"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	// PublicURL is the base URL players open to join, e.g. https://bingo.example.com.
	// When empty it is derived from the request.
	PublicURL string
	WS        WSOptions
	// Auth guards the admin routes; nil or disabled hides them.
	Auth *auth.Authenticator
}

// lobbyInfo is the public view served at /lobby/:id.
type lobbyInfo struct {
	ID      string            `json:"id"`
	Host    string            `json:"host"`
	State   models.LobbyState `json:"state"`
	Players []string          `json:"players"`
}

// NewRouter wires every route onto an httprouter and wraps it in request logging.
func NewRouter(logger *logrus.Logger, gw *Gateway, opts ServerOptions) http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i interface{}) {
		logger.WithFields(logrus.Fields{"path": r.URL.Path, "panic": i}).Error("handler panicked")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	mux.GET("/healthz", serveHealthCheck)
	mux.Handler(http.MethodGet, "/ws", LobbyWSHandler(logger, gw, opts.WS))
	mux.GET("/lobby/:id", serveLobbyInfo(gw.Store()))
	mux.GET("/lobby/:id/qr", serveLobbyQR(gw.Store(), opts.PublicURL))
	mux.GET("/admin/lobbies", serveAdminLobbies(gw.Store(), opts.Auth))

	return middleware.LogMiddleware(logger)(mux)
}

func serveHealthCheck(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func serveLobbyInfo(store *lobby.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		l, err := store.Get(ps.ByName("id"))
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		sum := l.Summary()
		info := lobbyInfo{ID: sum.ID, Host: sum.Host, State: sum.State, Players: make([]string, len(sum.Players))}
		for i, p := range sum.Players {
			info.Players[i] = p.Name
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// serveLobbyQR renders a PNG QR code of the lobby's join URL.
func serveLobbyQR(store *lobby.Store, publicURL string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		l, err := store.Get(ps.ByName("id"))
		if err != nil {
			writeLobbyError(w, err)
			return
		}

		png, err := qrcode.Encode(JoinURL(baseURL(r, publicURL), l.ID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

func serveAdminLobbies(store *lobby.Store, a *auth.Authenticator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if !a.Enabled() {
			http.NotFound(w, r)
			return
		}
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		sub, err := a.AuthenticateJWT(token)
		if err != nil || sub != auth.AdminSubject {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		lobbies := store.Lobbies()
		out := make([]lobby.Summary, 0, len(lobbies))
		for _, l := range lobbies {
			out = append(out, l.Summary())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// JoinURL is the link encoded in a lobby's QR code.
func JoinURL(base, lobbyID string) string {
	return strings.TrimSuffix(base, "/") + "/join/" + lobbyID
}

// baseURL prefers the configured public URL, else rebuilds one from the request
// (respecting TLS and X-Forwarded-Proto).
func baseURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func writeLobbyError(w http.ResponseWriter, err error) {
	if errors.Is(err, lobby.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
