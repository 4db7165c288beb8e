// Command issue-token mints a bearer token for local development and smoke
// tests. It signs with the same auth.jwt_secret the server loads, so the
// token is accepted by a server sharing that configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/config"
	"github.com/phrazzld/futureself-api/internal/service/auth"
)

func main() {
	userFlag := flag.String("user", "", "user UUID to issue the token for (random if empty)")
	lifetime := flag.Duration("lifetime", time.Hour, "token lifetime")
	flag.Parse()

	// Only the auth settings matter here; the rest of the config may be absent.
	secret := os.Getenv(config.EnvPrefix + "_AUTH_JWT_SECRET")
	svc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: secret})
	if err != nil {
		log.Fatalf("issue-token: %v (set %s_AUTH_JWT_SECRET)", err, config.EnvPrefix)
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			log.Fatalf("issue-token: invalid user id: %v", err)
		}
	}

	token, err := svc.GenerateToken(context.Background(), userID, *lifetime)
	if err != nil {
		log.Fatalf("issue-token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user: %s\nexpires: %s\n", userID, time.Now().Add(*lifetime).UTC().Format(time.RFC3339))
	fmt.Println(token)
}
