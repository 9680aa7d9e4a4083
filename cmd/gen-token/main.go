// Command gen-token mints access tokens signed with JWT_SECRET, for load
// tests and manual calls against a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard-api/auth"
	"taskboard-api/domain"
)

type tokenConfig struct {
	Secret string        `env:"JWT_SECRET,required"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
	Issuer string        `env:"JWT_ISSUER"`
}

func main() {
	var (
		count  = flag.Int("count", 1, "number of tokens to generate")
		email  = flag.String("email", "perf-user@example.com", "email claim; numbered when count > 1")
		output = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	cfg, err := env.ParseAs[tokenConfig]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	issuer, err := auth.NewTokens(auth.Options{Secret: []byte(cfg.Secret), TTL: cfg.TTL, Issuer: cfg.Issuer})
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	tokens, err := generateTokens(issuer, identities(*count, *email, args))
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}

	fmt.Print(tokens[0])
}

// identities builds count identities. A single explicit user id in args is
// used as is; otherwise ids are random and emails are numbered.
func identities(count int, email string, args []string) []domain.Identity {
	if len(args) > 0 {
		return []domain.Identity{{ID: args[0], Email: email}}
	}
	ids := make([]domain.Identity, count)
	for i := range ids {
		addr := email
		if count > 1 {
			addr = fmt.Sprintf("%d-%s", i+1, email)
		}
		ids[i] = domain.Identity{ID: uuid.NewString(), Email: addr}
	}
	return ids
}

func generateTokens(issuer domain.TokenIssuer, ids []domain.Identity) ([]string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tok, err := issuer.Issue(id)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
