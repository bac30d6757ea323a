package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/devicewatch/internal/auth"
	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/reconciler"
	"github.com/jpalmerr/devicewatch/internal/store"
)

// maxBodyBytes caps request bodies; every payload is a small JSON object.
const maxBodyBytes = 1 << 16

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeBody(w, r, &c) {
		return
	}

	sess, err := s.auth.Register(r.Context(), c.Username, c.Password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, "username already taken")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("register failed", "username", c.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decodeBody(w, r, &c) {
		return
	}

	sess, err := s.auth.Login(r.Context(), c.Username, c.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "username", c.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.internalError(w, "list devices", err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	d, err := s.checker.CheckDevice(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
		return
	case errors.Is(err, reconciler.ErrProbeFailed):
		writeError(w, http.StatusBadGateway, "failed to ping device")
		return
	case err != nil:
		s.internalError(w, "ping device", err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListRouters(w http.ResponseWriter, r *http.Request) {
	routers, err := s.store.ListRouters(r.Context())
	if err != nil {
		s.internalError(w, "list routers", err)
		return
	}
	writeJSON(w, http.StatusOK, routers)
}

func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := s.store.ListPrinters(r.Context())
	if err != nil {
		s.internalError(w, "list printers", err)
		return
	}
	writeJSON(w, http.StatusOK, printers)
}

func (s *Server) handleSetPrinterOnline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Online *int `json:"online"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Online == nil || !inventory.ValidFlag(*body.Online) {
		writeError(w, http.StatusBadRequest, "online must be 1 or 0")
		return
	}

	err := s.store.SetPrinterOnline(r.Context(), id, *body.Online)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "printer not found")
		return
	}
	if err != nil {
		s.internalError(w, "set printer online", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "printer online status updated"})
}

func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := s.store.ListBoxes(r.Context())
	if err != nil {
		s.internalError(w, "list boxes", err)
		return
	}
	writeJSON(w, http.StatusOK, boxes)
}

// handleSetBoxPower updates the power flag of the box attached to device {id}.
func (s *Server) handleSetBoxPower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		PowerStatus *int `json:"power_status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PowerStatus == nil || !inventory.ValidFlag(*body.PowerStatus) {
		writeError(w, http.StatusBadRequest, "power_status must be 1 or 0")
		return
	}

	box, err := s.store.SetBoxPowerStatus(r.Context(), id, *body.PowerStatus)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "box not found")
		return
	}
	if err != nil {
		s.internalError(w, "set box power status", err)
		return
	}

	writeJSON(w, http.StatusOK, box)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
