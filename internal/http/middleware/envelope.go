package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError escreve o envelope padrão de falha. Fica aqui para não importar o pacote http.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":          false,
		"message":          message,
		"data":             nil,
		"validationErrors": nil,
	})
}
