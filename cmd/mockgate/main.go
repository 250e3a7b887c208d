package main

import (
	"flag"
	"time"

	"GProject/logger"
	"GProject/service/mockgate"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("secret", "", "JWT secret; empty allows anonymous")
	user := flag.String("token-for", "", "print a token for this user and keep serving")
	flag.Parse()

	gw := mockgate.NewGateway(mockgate.Config{Secret: *secret})
	gw.SeedRoom(mockgate.Room{ID: "42", Name: "lounge", MemberCount: 2})

	if *user != "" && *secret != "" {
		tok, err := gw.IssueToken(*user, 24*time.Hour)
		if err != nil {
			logger.Errorf("issue token: %v", err)
		} else {
			logger.Infof("token for %s: %s", *user, tok)
		}
	}

	logger.Infof("mock gateway listening on %s", *addr)
	if err := gw.Router().Run(*addr); err != nil {
		logger.Errorf("server exited: %v", err)
	}
}
