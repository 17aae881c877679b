package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience é o público fixo dos tokens emitidos pela ponte legada.
const Audience = "rhsenso"

// Claims representa as informações presentes em um JWT de acesso.
type Claims struct {
	Nome    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Empresa string   `json:"empresa,omitempty"`
	Filial  string   `json:"filial,omitempty"`
	Grupos  []string `json:"grupos,omitempty"`
	jwt.RegisteredClaims
}

// Identity agrupa os dados do usuário que vão para o token.
type Identity struct {
	CdUsuario string
	Nome      string
	Email     string
	Empresa   string
	Filial    string
	Grupos    []string
}

// AccessToken descreve o token emitido.
type AccessToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// JWTManager encapsula geração e validação de tokens.
type JWTManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewJWTManager cria o gerenciador com segredo, emissor e TTL configurados.
func NewJWTManager(secret, issuer string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL, now: time.Now}
}

// GenerateAccessToken cria um JWT HS256 para a identidade informada.
func (m *JWTManager) GenerateAccessToken(id Identity) (AccessToken, error) {
	if id.CdUsuario == "" {
		return AccessToken{}, errors.New("subject obrigatório")
	}

	now := m.now().UTC()
	jti := uuid.NewString()
	expires := now.Add(m.accessTTL)

	claims := Claims{
		Nome:    id.Nome,
		Email:   id.Email,
		Empresa: id.Empresa,
		Filial:  id.Filial,
		Grupos:  id.Grupos,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.CdUsuario,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return AccessToken{}, err
	}

	return AccessToken{Token: signed, ID: jti, ExpiresAt: expires}, nil
}

// ParseAndValidate verifica assinatura, expiração, emissor e audience.
func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parser := jwt.NewParser(opts...)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token inválido")
	}
	if claims.Subject == "" {
		return nil, errors.New("token sem subject")
	}

	return claims, nil
}
