package httpapi

import "net/http"

// statusBody 与前端约定的简单响应信封
// - status: 'ok' | 'empty' | 'error' | 'received'
type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func okData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, statusBody{Status: "error", Message: message})
}
