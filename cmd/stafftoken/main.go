// Command stafftoken mints a staff access token for local development and
// smoke tests. It signs with the same JWT_SIGNING_KEY the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "policydesk/internal/jwt_token"
	"policydesk/internal/platform/config"
	id "policydesk/pkg/domain"
)

func main() {
	userID := flag.String("user", "", "staff user id")
	name := flag.String("name", "", "display name recorded in activity logs")
	dept := flag.String("dept", "", "business_development, premium_administration or underwriting")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fail(err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fail(err)
	}
	department, err := id.ParseDepartment(*dept)
	if err != nil {
		fail(err)
	}
	if *userID == "" {
		fail(fmt.Errorf("-user is required"))
	}

	svc := jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.Issuer, jwttoken.Audience)
	token, err := svc.GenerateStaffToken(*userID, *name, department, *ttl)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "stafftoken:", err)
	os.Exit(1)
}
