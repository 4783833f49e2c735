// Package auth はIdPが発行したセッショントークンの検証を提供する。
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/ticketbox/internal/model"
)

// defaultLeeway はトークンの有効期限判定で許容する時刻のずれ。
const defaultLeeway = 5 * time.Second

// Identity は検証済みトークンから得られる利用者情報。
// UserIDはトークンにuserIdクレームがない場合は空文字列。
type Identity struct {
	ClerkID string
	UserID  string
}

// sessionClaims はセッショントークンのペイロード。
// userIdはIdPのpublic_metadataに書き込まれた内部ユーザーID。
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
}

// Verifier はRS256で署名されたセッショントークンを検証する。
type Verifier struct {
	key    *rsa.PublicKey
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier はPEM形式の公開鍵からVerifierを生成する。
// 環境変数で "\n" がエスケープされた鍵も受け付ける。
func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, model.NewConfigurationError("CLERK_JWT_KEY")
	}
	normalized := strings.ReplaceAll(publicKeyPEM, `\n`, "\n")

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalized))
	if err != nil {
		return nil, fmt.Errorf("auth: parsing public key: %w", err)
	}
	return &Verifier{key: key, leeway: defaultLeeway, now: time.Now}, nil
}

// Verify はトークンの署名と有効期限を検証し、利用者情報を返す。
// 検証に失敗した場合はVerificationErrorを返す。
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, model.NewVerificationError(errors.New("missing session token"))
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.key, nil
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewVerificationError(errors.New("session token expired"))
		}
		return nil, model.NewVerificationError(err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, model.NewVerificationError(errors.New("invalid session token claims"))
	}
	if c.Subject == "" {
		return nil, model.NewVerificationError(errors.New("session token has no subject"))
	}

	return &Identity{ClerkID: c.Subject, UserID: c.UserID}, nil
}
