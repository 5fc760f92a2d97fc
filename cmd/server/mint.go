package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/stock-exchange/internal/auth"
)

type MintTokenCmd struct {
	Subject       string        `default:"operator" help:"Subject recorded in the token"`
	TTL           time.Duration `default:"24h" help:"Token lifetime"`
	SessionSecret string        `env:"EXCHANGE_SESSION_SECRET" help:"HMAC secret shared with the running server"`
}

func (c *MintTokenCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	secret := c.SessionSecret
	if secret == "" {
		secret = cfg.SessionSecret
	}
	if secret == "" {
		return errors.New("no session secret: set sessions.secret or EXCHANGE_SESSION_SECRET")
	}
	signer, err := auth.NewSigner(secret)
	if err != nil {
		return err
	}
	token, err := signer.MintOperatorToken(c.Subject, c.TTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
