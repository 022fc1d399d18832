package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/service"
	"golang.org/x/term"
)

func main() {
	uid := flag.String("uid", "", "user uid carried by the token (required)")
	tokenType := flag.String("type", string(service.TokenTypeUser), "token type: user or staff")
	perms := flag.String("perms", "", "comma-separated staff permissions, or \"all\"")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_EXPIRY)")
	askSecret := flag.Bool("prompt-secret", false, "read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}

	if strings.TrimSpace(*uid) == "" {
		flag.Usage()
		os.Exit(2)
	}

	typ := service.TokenType(*tokenType)
	if typ != service.TokenTypeUser && typ != service.TokenTypeStaff {
		fail("unknown token type %q", *tokenType)
	}

	permissions, err := parsePermissions(*perms)
	if err != nil {
		fail("%v", err)
	}
	if len(permissions) > 0 && typ != service.TokenTypeStaff {
		fail("permissions can only be granted to staff tokens")
	}

	if *askSecret {
		fmt.Fprint(os.Stderr, "Enter JWT secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr) // Newline after hidden input
		if err != nil {
			fail("read secret: %v", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(secret))
	}
	if cfg.JWTSecret == "" {
		fail("JWT secret is empty")
	}

	token, err := service.NewAuthService(cfg).IssueToken(strings.TrimSpace(*uid), typ, permissions, *ttl)
	if err != nil {
		fail("issue token: %v", err)
	}

	expiry := *ttl
	if expiry <= 0 {
		expiry = cfg.JWTExpiry
	}
	fmt.Fprintf(os.Stderr, "Issued %s token for %q, valid until %s\n",
		typ, *uid, time.Now().Add(expiry).UTC().Format(time.RFC3339))
	fmt.Println(token)
}

func parsePermissions(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw == "all" {
		out := make([]string, len(model.AllPermissions))
		for i, p := range model.AllPermissions {
			out[i] = string(p)
		}
		return out, nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := model.Permission(strings.TrimSpace(part))
		if !slices.Contains(model.AllPermissions, p) {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		out = append(out, string(p))
	}
	return out, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
