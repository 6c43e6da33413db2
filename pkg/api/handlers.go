package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/dixieflatline76/facecrop/util/log"
)

// cropResponse is the JSON body of POST /crop.
type cropResponse struct {
	facecrop.Result
	Error string `json:"error,omitempty"`
}

// handleIndex serves the upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page, err := s.assets.GetPage("index.html")
	if err != nil {
		http.Error(w, "Page not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	model := "ready"
	if !s.processor.ModelReady() {
		status, _ := s.processor.Status()
		model = status.String()
	}
	writeResponse(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": s.opts.Version,
		"model":   model,
	})
}

// handleWebSocket upgrades the connection to WebSocket and sends the current status.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Value() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	status, message := s.processor.Status()
	err = writeJSON(conn, statusMessage{Type: "status", Status: status, Message: message})
	if err == nil {
		s.clients[conn] = true
	}
	s.clientsMu.Unlock()
	if err != nil {
		log.Printf("WebSocket greeting failed: %v", err)
		return
	}

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	for {
		// Clients only send keepalives.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handleCrop runs an uploaded image through the processor.
func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image is too large.")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing image upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read upload.")
		return
	}

	res, err := s.processor.Submit(r.Context(), data)
	resp := cropResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeResponse(w, statusCode(err), resp)
}

// statusCode maps a processing error to an HTTP status. No face is a normal outcome.
func statusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, facecrop.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, facecrop.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, facecrop.ErrModelNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, facecrop.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeResponse(w, code, map[string]string{"status": "error", "error": message, "message": message})
}

func writeResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
