package service

import "errors"

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("usuário ou senha inválidos")
	// ErrAccountDisabled indica usuário com flativo diferente de 'S'.
	ErrAccountDisabled = errors.New("usuário inativo")
	// ErrAccountLocked indica bloqueio temporário por excesso de tentativas.
	ErrAccountLocked = errors.New("usuário bloqueado temporariamente por excesso de tentativas")
	// ErrRefreshInvalid indica refresh token inválido, expirado ou reutilizado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrWeakPassword indica senha nova fora da política mínima.
	ErrWeakPassword = errors.New("nova senha deve ter pelo menos 8 caracteres e ser diferente da atual")
)
