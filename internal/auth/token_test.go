package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("clinic-secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "usr_1",
		Name: "Dr. Yilmaz",
		Role: "doctor",
		JTI:  "jti_1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "usr_1" || claims.Role != "doctor" || claims.JTI != "jti_1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("clinic-secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "usr_1",
		Name: "Dr. Yilmaz",
		Role: "doctor",
		JTI:  "jti_1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); err != ErrExpiredToken {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("clinic-secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "usr_2",
		Name: "Front Desk",
		Role: "employee",
		JTI:  "jti_2",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	forged, err := IssueToken(secret, Claims{
		Sub:  "usr_2",
		Name: "Front Desk",
		Role: "admin",
		JTI:  "jti_2",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	payload := strings.SplitN(forged, ".", 2)[0]
	signature := strings.SplitN(issued, ".", 2)[1]
	if _, err := ParseToken(secret, payload+"."+signature); err != ErrInvalidToken {
		t.Fatalf("ParseToken() error = %v, want ErrInvalidToken", err)
	}

	if _, err := ParseToken([]byte("other-secret"), issued); err != ErrInvalidToken {
		t.Fatalf("ParseToken() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}
