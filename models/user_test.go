package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

func TestPasswordMatches(t *testing.T) {
	hash, err := utils.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !passwordMatches(string(hash), "s3cret") {
		t.Fatal("correct password must match its hash")
	}
	if passwordMatches(string(hash), "wrong") {
		t.Fatal("wrong password must not match")
	}
	// A corrupt stored hash fails the compare with an error other than a
	// mismatch; that must still count as a failed login.
	if passwordMatches("not-a-bcrypt-hash", "s3cret") {
		t.Fatal("malformed stored hash must never match")
	}
	if passwordMatches("", "s3cret") {
		t.Fatal("empty stored hash must never match")
	}
}
