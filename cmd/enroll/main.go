// Command enroll is the operator tool for creating accounts. The secret is
// read from the terminal with echo disabled and wiped after hashing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/audittrail"
	"github.com/lifexhealth/medvault/internal/server/config"
	"github.com/lifexhealth/medvault/internal/server/credguard"
	"github.com/lifexhealth/medvault/internal/server/models"
	"github.com/lifexhealth/medvault/internal/server/repositories/repomanager"
)

func main() {

	email := flag.String("email", "", "account email (login identifier)")
	fullName := flag.String("name", "", "full name")
	role := flag.String("role", string(models.RolePatient), "role: PATIENT, STAFF or ADMIN")
	department := flag.String("department", "", "department (staff accounts)")
	flag.Parse()

	if *email == "" || *fullName == "" {
		flag.Usage()
		os.Exit(2)
	}

	fmt.Println("Enter secret")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatalf("reading secret: %v", err)
	}
	defer common.WipeByteArray(secret)

	cfg := config.LoadConfig()

	db, err := repomanager.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	audit := audittrail.NewService(db, m, logger)
	guard := credguard.NewService(db, m, audit, logger, cfg)

	account, err := guard.Enroll(ctx, *email, *fullName, models.Role(*role), *department, secret)
	if err != nil {
		log.Fatalf("enroll error: %v", err)
	}

	fmt.Printf("enrolled %s (%s) as %s\n", account.Email, account.ID, account.Role)
}
