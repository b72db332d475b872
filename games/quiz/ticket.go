package quiz

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ticketIssuer = "quizbox"

type hostClaims struct {
	Code string `json:"code"`
	jwt.RegisteredClaims
}

// Tickets signs and checks the host capability handed out when a session
// is started. A ticket is bound to one session id, so it dies with the
// session even if its code is later reused.
type Tickets struct {
	secret []byte
	ttl    time.Duration
}

func NewTickets(secret []byte, ttl time.Duration) *Tickets {
	return &Tickets{
		secret: secret,
		ttl:    ttl,
	}
}

func (t *Tickets) Issue(session *GameSession, now time.Time) (string, error) {
	claims := hostClaims{
		Code: session.Code,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ticketIssuer,
			Subject:  strconv.FormatUint(uint64(session.ID), 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign host ticket: %w", err)
	}

	return signed, nil
}

// Verify reports a Forbidden error unless ticket is a valid host ticket
// for session.
func (t *Tickets) Verify(ticket string, session *GameSession) error {
	var claims hostClaims

	_, err := jwt.ParseWithClaims(ticket, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ticketIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return forbidden("host ticket expired")
		}
		return forbidden("invalid host ticket")
	}

	if claims.Code != session.Code || claims.Subject != strconv.FormatUint(uint64(session.ID), 10) {
		return forbidden("host ticket is for another game")
	}

	return nil
}
