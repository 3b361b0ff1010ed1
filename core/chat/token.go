package chat

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

const roomTokenAudience = "masomo.chat.room"

// TokenVerifier resolves the room a room access token was issued for.
type TokenVerifier interface {
	RoomID(token string) (roomID string, ok bool)
}

// TokenIssuer mints room access tokens.
type TokenIssuer interface {
	Issue(userID, roomID string) (string, error)
}

type roomClaims struct {
	jwt.StandardClaims
	RoomID string `json:"room_id"`
}

// RoomTokens issues and verifies HS256 room access tokens.
type RoomTokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

var (
	_ TokenVerifier = (*RoomTokens)(nil)
	_ TokenIssuer   = (*RoomTokens)(nil)
)

var NowFunc = time.Now // mockable

func NewRoomTokens(secret, issuer string, ttl time.Duration) *RoomTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RoomTokens{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

func (t *RoomTokens) Issue(userID, roomID string) (string, error) {
	now := NowFunc().UTC()
	claims := roomClaims{
		StandardClaims: jwt.StandardClaims{
			Audience:  roomTokenAudience,
			ExpiresAt: now.Add(t.ttl).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    t.issuer,
			Subject:   userID,
		},
		RoomID: roomID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing room token")
	}
	return token, nil
}

func (t *RoomTokens) RoomID(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	claims := new(roomClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	if !claims.VerifyAudience(roomTokenAudience, true) || claims.RoomID == "" {
		return "", false
	}
	return claims.RoomID, true
}
