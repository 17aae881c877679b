package http

import (
	"encoding/json"
	"net/http"
)

// Envelope é o formato único de resposta da API.
type Envelope struct {
	Success          bool                `json:"success"`
	Message          string              `json:"message"`
	Data             any                 `json:"data"`
	ValidationErrors map[string][]string `json:"validationErrors"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError escreve envelope de erro e mantém formato consistente.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{Success: false, Message: message})
}

// WriteValidation responde 400 com os erros agrupados por campo.
func WriteValidation(w http.ResponseWriter, errs map[string][]string) {
	writeEnvelope(w, http.StatusBadRequest, Envelope{
		Success:          false,
		Message:          "dados inválidos",
		ValidationErrors: errs,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
