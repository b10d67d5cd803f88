// Command token signs a development JWT so the API can be exercised locally.
package main

import (
	"flag"
	"fmt"
	"os"

	"smartcampus/internal/config"
	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/jwt"
)

func main() {
	var (
		userID int64
		role   string
	)
	flag.Int64Var(&userID, "user", 1, "user id to put into the token")
	flag.StringVar(&role, "role", string(domain.RoleStudent), "role: admin, lecturer or student")
	flag.Parse()

	if userID <= 0 {
		fmt.Fprintln(os.Stderr, "user must be a positive id")
		os.Exit(2)
	}
	if !domain.UserRole(role).Valid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	token, err := jwt.New(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateToken(userID, role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
