package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sjperalta/lendcore-api/internal/config"
	"github.com/sjperalta/lendcore-api/internal/database"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/services"
	"github.com/sjperalta/lendcore-api/pkg/logger"
)

// create_user bootstraps a branch and a staff account, typically the first
// admin of a fresh database:
//
//	go run ./cmd/create_user -email admin@example.com -password ... -role admin
//	go run ./cmd/create_user -email ana@example.com -password ... -role officer -branch CTR -branch-name Centro
func main() {
	email := flag.String("email", "", "user email")
	password := flag.String("password", os.Getenv("CREATE_USER_PASSWORD"), "user password (or CREATE_USER_PASSWORD)")
	fullName := flag.String("name", "", "full name")
	role := flag.String("role", models.RoleAdmin, "admin, manager or officer")
	branchCode := flag.String("branch", "", "branch code, created if missing")
	branchName := flag.String("branch-name", "", "branch name when the branch is created")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Environment, cfg.LogLevel)

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	repos := repository.NewRepositories(db, cfg.TxMaxRetries)
	users := services.NewUserService(repos.User, repos.Branch, nil)
	ctx := context.Background()

	var branchID *uint
	if *branchCode != "" {
		name := *branchName
		if name == "" {
			name = *branchCode
		}
		branch, err := users.CreateBranch(ctx, *branchCode, name, nil)
		if err != nil {
			log.Fatalf("Failed to create branch: %v", err)
		}
		branchID = &branch.ID
		log.Printf("Using branch %s (id %d)", branch.Code, branch.ID)
	}

	name := *fullName
	if name == "" {
		name = *email
	}

	user, err := users.Create(ctx, services.Actor{Role: models.RoleAdmin}, services.CreateUserInput{
		Email:    *email,
		Password: *password,
		FullName: name,
		Role:     *role,
		BranchID: branchID,
	})
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	log.Printf("Created %s %s (id %d)", user.Role, user.Email, user.ID)
}
