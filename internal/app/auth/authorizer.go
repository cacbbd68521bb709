package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var (
	ErrAccessTokenInvalid = errors.New("invalid access token")
	ErrAccessTokenExpired = fmt.Errorf("%w: token expired", ErrAccessTokenInvalid)
)

// Authorizer issues and checks HS256 access tokens. The subject claim is the requester id.
type Authorizer struct {
	Secret         string
	AccessTokenTTL time.Duration
	Now            func() time.Time
}

func (a *Authorizer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Authorizer) GenerateAccessToken(userID string) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti": uuid.NewString(),
		"sub": userID,
		"exp": now.Add(a.AccessTokenTTL).Unix(),
		"iat": now.Unix(),
	})
	return token.SignedString([]byte(a.Secret))
}

type AccessTokenData struct {
	TokenID string
	UserID  string
}

func (a *Authorizer) ValidateAccessToken(accessToken string) (*AccessTokenData, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAccessTokenInvalid
		}
		return []byte(a.Secret), nil
	})

	var ve *jwt.ValidationError
	if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
		return nil, ErrAccessTokenExpired
	}
	if err != nil {
		return nil, ErrAccessTokenInvalid
	}

	jti, _ := claims["jti"].(string)
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrAccessTokenInvalid
	}
	return &AccessTokenData{TokenID: jti, UserID: sub}, nil
}
