package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"player-identity-system/chains"
	"player-identity-system/handlers"
	"player-identity-system/middleware"
	"player-identity-system/models"
	"player-identity-system/services"
	"player-identity-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // identity payloads are small
	})

	// Gateway auth is opt-in here: direct browser traffic carries the
	// session cookie instead when the service fronts the public internet.
	if os.Getenv("GATEWAY_SERVICE_TOKEN") != "" {
		app.Use(middleware.GatewayAuthMiddleware())
	}

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type",
		AllowCredentials: true, // session cookie
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Account{},
		&models.Nonce{},
		&models.Session{},
		&models.Referral{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	clock := clockwork.NewRealClock()

	identityCache := utils.NewTTLCache[*services.Identity](clock, 1024)
	identityClient := services.NewIdentityClient(identityCache)

	challengeService := services.NewChallengeService(db, clock)
	sessionService := services.NewSessionService(db, clock, identityClient)
	accountLinker := services.NewAccountLinker(db)
	referralService := services.NewReferralService(db, clock)

	services.StartExpirySweeper(db, clock)

	primaryChain := os.Getenv("PRIMARY_CHAIN")
	if primaryChain == "" {
		primaryChain = "base"
	}
	secondaryChain := os.Getenv("SECONDARY_CHAIN")
	if secondaryChain == "" {
		secondaryChain = "algorand"
	}
	signupGated := os.Getenv("SIGNUP_GATED") == "true"

	defaultMaxReferrals := 5
	if raw := os.Getenv("DEFAULT_MAX_REFERRALS"); raw != "" {
		if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
			defaultMaxReferrals = n
		}
	}

	deps := handlers.AuthDeps{
		DB:                  db,
		Clock:               clock,
		Chains:              chains.NewRegistry(clock),
		Challenges:          challengeService,
		Sessions:            sessionService,
		Linker:              accountLinker,
		Referrals:           referralService,
		Identity:            identityClient,
		PrimaryChain:        primaryChain,
		SecondaryChain:      secondaryChain,
		SignupGated:         signupGated,
		DefaultMaxReferrals: defaultMaxReferrals,
	}

	handlers.SetupAuthRoutes(app, deps)
	handlers.SetupLinkRoutes(app, deps)
	handlers.SetupReferralRoutes(app, deps)
	handlers.SetupProfileRoutes(app, deps)
	handlers.SetupAdminRoutes(app, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Chains registered: %s (primary: %s, secondary: %s)", strings.Join(deps.Chains.Chains(), ", "), primaryChain, secondaryChain)
	log.Printf("✅ Signup gating: %v", signupGated)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
