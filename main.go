package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"renopilot/internal/ai"
	"renopilot/internal/config"
	"renopilot/internal/gmail"
	"renopilot/internal/handler"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository"
	"renopilot/internal/repository/memory"
	"renopilot/internal/repository/postgres"
	"renopilot/internal/router"
	"renopilot/internal/service"
	"renopilot/internal/sse"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Config validation failed:", err)
	}

	appLogger := logger.New()

	// Repositories: postgres when DATABASE_URL is set, in-memory otherwise
	var userRepo repository.UserRepository
	var projectRepo repository.ProjectRepository
	var contractorRepo repository.ContractorRepository
	var convRepo repository.ConversationRepository
	var messageRepo repository.MessageRepository
	var actionRepo repository.ActionRepository
	var offerRepo repository.OfferRepository
	var analysisRepo repository.OfferAnalysisRepository
	var processedRepo repository.ProcessedEmailRepository
	var cacheRepo repository.GenerationCacheRepository

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		defer db.Close()

		userRepo = postgres.NewPostgresUserRepository(db)
		projectRepo = postgres.NewPostgresProjectRepository(db)
		contractorRepo = postgres.NewPostgresContractorRepository(db)
		convRepo = postgres.NewPostgresConversationRepository(db)
		messageRepo = postgres.NewPostgresMessageRepository(db)
		actionRepo = postgres.NewPostgresActionRepository(db)
		offerRepo = postgres.NewPostgresOfferRepository(db)
		analysisRepo = postgres.NewPostgresOfferAnalysisRepository(db)
		processedRepo = postgres.NewPostgresProcessedEmailRepository(db)
		cacheRepo = postgres.NewPostgresGenerationCacheRepository(db)

		if err := postgres.InitializeDatabase(db); err != nil {
			log.Fatal("Failed to initialize database:", err)
		}

		appLogger.Info("Using PostgreSQL repositories")
	} else {
		userRepo = memory.NewInMemoryUserRepository()
		projectRepo = memory.NewInMemoryProjectRepository()
		contractorRepo = memory.NewInMemoryContractorRepository()
		convRepo = memory.NewInMemoryConversationRepository()
		messageRepo = memory.NewInMemoryMessageRepository()
		actionRepo = memory.NewInMemoryActionRepository()
		offerRepo = memory.NewInMemoryOfferRepository()
		analysisRepo = memory.NewInMemoryOfferAnalysisRepository()
		processedRepo = memory.NewInMemoryProcessedEmailRepository()
		cacheRepo = memory.NewInMemoryGenerationCacheRepository()

		appLogger.Info("Using in-memory repositories")
	}

	loadSeedContractors(contractorRepo, appLogger)

	genClient := ai.NewClient(cfg, cacheRepo, appLogger)
	mailClient := NewUserScopedMailClient(userRepo, appLogger)

	authService := service.NewAuthService(userRepo, appLogger)
	projectService := service.NewProjectService(projectRepo, contractorRepo, appLogger)
	offerService := service.NewOfferService(offerRepo, analysisRepo, genClient, mailClient, cfg.Risk, appLogger)
	conversationService := service.NewConversationService(
		convRepo, messageRepo, actionRepo, projectRepo, contractorRepo,
		genClient, service.NewContextBuilder(cfg.ContextWindow), appLogger,
	)
	actionService := service.NewActionService(
		actionRepo, messageRepo, convRepo, userRepo, contractorRepo,
		offerRepo, processedRepo, mailClient, genClient, offerService,
		cfg.MaxFetchEmails, appLogger,
	)
	ingestionService := service.NewIngestionService(
		userRepo, convRepo, messageRepo, actionRepo, contractorRepo,
		processedRepo, mailClient, genClient, offerService, cfg,
		logger.NewWithComponent("ingestion"),
	)

	sseManager := sse.NewManager(appLogger)
	pollJob := sse.NewPollJob(ingestionService, userRepo, sseManager, cfg, logger.NewWithComponent("poll"))

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	authHandler := handler.NewAuthHandler(authService, cfg, e.Logger)
	projectHandler := handler.NewProjectHandler(projectService, authHandler, e.Logger)
	conversationHandler := handler.NewConversationHandler(conversationService, offerService, ingestionService, authHandler, sseManager, e.Logger)
	actionHandler := handler.NewActionHandler(actionService, e.Logger)

	router.SetupRoutes(e, authHandler, projectHandler, conversationHandler, actionHandler)

	go pollJob.Start()

	appLogger.Info("Starting server on port", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil {
		appLogger.Error("Failed to start server:", err)
		pollJob.Stop()
		sseManager.Close()
	}
}

// loadSeedContractors loads the contractor directory from contractors.json
// when the store is empty.
func loadSeedContractors(contractorRepo repository.ContractorRepository, appLogger *logger.Logger) {
	ctx := context.Background()

	existing, err := contractorRepo.FindAll(ctx)
	if err != nil || len(existing) > 0 {
		return
	}

	data, err := os.ReadFile("contractors.json")
	if err != nil {
		appLogger.Info("No contractors.json seed file found, starting with an empty directory")
		return
	}

	var seeds []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Trade string `json:"trade"`
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal(data, &seeds); err != nil {
		appLogger.Error("Failed to parse contractors.json:", err)
		return
	}

	for _, seed := range seeds {
		contractor := model.NewContractor(seed.Name, seed.Email, seed.Trade, seed.Notes)
		if err := contractorRepo.Create(ctx, contractor); err != nil {
			appLogger.Error("Failed to seed contractor", seed.Name, ":", err)
		}
	}
	appLogger.Info("Seeded", len(seeds), "contractors from contractors.json")
}

// UserScopedMailClient resolves a per-user Gmail client from the stored
// access token on every call.
type UserScopedMailClient struct {
	userRepo repository.UserRepository
	logger   *logger.Logger
}

func NewUserScopedMailClient(userRepo repository.UserRepository, logger *logger.Logger) service.MailClient {
	return &UserScopedMailClient{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (u *UserScopedMailClient) clientFor(ctx context.Context, userEmail string) (*gmail.Client, error) {
	user, err := u.userRepo.FindByEmail(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("user not found for email: %s", userEmail)
	}
	if user.AccessToken == "" {
		return nil, fmt.Errorf("access token not available for user: %s", userEmail)
	}
	return gmail.NewClient(user.AccessToken, userEmail, u.logger)
}

func (u *UserScopedMailClient) SearchMessages(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
	client, err := u.clientFor(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return client.SearchMessages(ctx, fromAddress, max)
}

func (u *UserScopedMailClient) GetMessageDetails(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error) {
	client, err := u.clientFor(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return client.GetMessageDetails(ctx, messageID)
}

func (u *UserScopedMailClient) DownloadAttachment(ctx context.Context, userEmail, messageID, attachmentID string) ([]byte, error) {
	client, err := u.clientFor(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return client.DownloadAttachment(ctx, messageID, attachmentID)
}

func (u *UserScopedMailClient) SendEmail(ctx context.Context, userEmail string, out *model.OutboundEmail) (*model.SendReceipt, error) {
	client, err := u.clientFor(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return client.SendEmail(ctx, out)
}
