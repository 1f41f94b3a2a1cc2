// Command seed creates the Admin and User roles and the administrator
// account. The password is taken from AUTHKEEPER_ADMIN_PASSWORD or read
// from the terminal when the account has to be created.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/prompt"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/seed"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	// the seeder writes no audit entries
	cfg.AuditSink = config.AuditMemory

	admin := seed.Admin{}
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	fs.StringVar(&admin.Email, "email", "admin@authkeeper.local", "administrator email")
	fs.StringVar(&admin.FullName, "name", "System Administrator", "administrator full name")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-email", "-name"}))

	admin.Password = func() ([]byte, error) {
		if pw := os.Getenv("AUTHKEEPER_ADMIN_PASSWORD"); pw != "" {
			return []byte(pw), nil
		}
		return prompt.GetPassword(os.Stderr)
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)
	backend, err := server.OpenBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("backend init error: %v", err)
	}
	defer backend.Close()

	if _, err := seed.Run(ctx, backend.Identity, admin, logger); err != nil {
		backend.Close()
		log.Fatalf("seed failed: %v", err)
	}

}
