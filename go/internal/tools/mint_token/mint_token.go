package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/models"
)

// mint_token prints a bearer token for a user, signed with JWT_SECRET.
//
//	go run ./go/internal/tools/mint_token -user <uuid> -role ADMIN
func main() {
	userFlag := flag.String("user", "", "user id")
	roleFlag := flag.String("role", string(models.UserRoleParticipant), "ADMIN or PARTICIPANT")
	ttlFlag := flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -user %q: %v\n", *userFlag, err)
		os.Exit(1)
	}
	role := models.UserRole(*roleFlag)
	if role != models.UserRoleAdmin && role != models.UserRoleParticipant {
		fmt.Fprintf(os.Stderr, "invalid -role %q\n", *roleFlag)
		os.Exit(1)
	}

	issuer, err := auth.NewIssuer(os.Getenv("JWT_SECRET"), *ttlFlag, clockwork.NewRealClock())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create issuer: %v\n", err)
		os.Exit(1)
	}
	token, err := issuer.Issue(userID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "token for %s (%s) expires %s\n", userID, role, time.Now().Add(*ttlFlag).Format(time.RFC3339))
	fmt.Println(token)
}
