package tokenpkg

import (
	"testing"
	"time"

	"github.com/go-petr/pet-wallet/pkg/randompkg"
)

func TestNew(t *testing.T) {
	t.Parallel()

	key := randompkg.String(32)

	maker, err := New(TypeJWT, key)
	if err != nil {
		t.Fatalf("New(%q, %v) returned error: %v", TypeJWT, key, err)
	}

	if _, ok := maker.(*JWTMaker); !ok {
		t.Errorf("New(%q, ...) = %T, want *JWTMaker", TypeJWT, maker)
	}

	maker, err = New(TypePaseto, key)
	if err != nil {
		t.Fatalf("New(%q, %v) returned error: %v", TypePaseto, key, err)
	}

	if _, ok := maker.(*PasetoMaker); !ok {
		t.Errorf("New(%q, ...) = %T, want *PasetoMaker", TypePaseto, maker)
	}
}

func TestEmptyUserIDToken(t *testing.T) {
	t.Parallel()

	maker, err := NewPasetoMaker(randompkg.String(32))
	if err != nil {
		t.Fatalf("NewPasetoMaker() returned error: %v", err)
	}

	token, _, err := maker.CreateToken("", time.Minute)
	if err != nil {
		t.Fatalf("maker.CreateToken(\"\", %v) returned error: %v", time.Minute, err)
	}

	if _, err = maker.VerifyToken(token); err != ErrInvalidToken {
		t.Errorf("maker.VerifyToken(%v) returned error %v, want %v", token, err, ErrInvalidToken)
	}
}
