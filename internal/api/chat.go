package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/campus-connect/internal/server"
)

const maxHistoryCount = 500

func (s *CampusApp) getChatMessages(w http.ResponseWriter, r *http.Request) {
	count := server.DefaultHistoryCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryCount {
			s.writeText(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(maxHistoryCount))
			return
		}
		count = n
	}

	msgs, err := s.hub.RecentMessages(r.Context(), count)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *CampusApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(identity, conn, s.hub, s.log)
	if err := s.hub.Register(client); err != nil {
		s.log.Println("rejecting connection:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
