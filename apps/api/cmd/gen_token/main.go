// Command gen_token prints an admin session token signed with
// APP_SIGNING_SECRET, for curl sessions against a local API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
		os.Exit(1)
	}

	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin email claim")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	signingSecret := os.Getenv("APP_SIGNING_SECRET")
	if len(signingSecret) < 16 {
		fmt.Fprintln(os.Stderr, "APP_SIGNING_SECRET must be set (min 16 chars)")
		os.Exit(1)
	}
	if *email == "" {
		*email = "admin@civicreport.local"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"email": *email,
		"role":  "admin",
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		panic(err)
	}
	fmt.Println(signedToken)
}
