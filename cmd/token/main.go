// Command token mints a bearer token for the catalog API's mutating routes.
//
//	token -sub editor -ttl 24h
//
// The secret comes from -secret, then JWT_SECRET, then a no-echo prompt when
// stdin is a terminal.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/annachatkara/moviedb/internal/server/auth"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "admin", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity; 0 for no expiry")
	secret := fs.String("secret", "", "HMAC secret (default $JWT_SECRET)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := strings.TrimSpace(*secret)
	if key == "" {
		key = strings.TrimSpace(getenv("JWT_SECRET"))
	}
	if key == "" {
		var err error
		if key, err = promptSecret(); err != nil {
			return err
		}
	}

	tok, err := auth.GenerateToken(*subject, []byte(key), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func promptSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no secret: pass -secret or set JWT_SECRET")
	}
	fmt.Fprint(os.Stderr, "JWT secret: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
