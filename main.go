package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursemarket/config"
	certificateControllers "coursemarket/controllers/certificate"
	enrollmentControllers "coursemarket/controllers/enrollment"
	paymentControllers "coursemarket/controllers/payment"
	"coursemarket/database"
	"coursemarket/middleware"
	"coursemarket/routers/certificateRoutes"
	"coursemarket/routers/courseRoutes"
	"coursemarket/routers/enrollmentRoutes"
	"coursemarket/routers/paymentRoutes"
	"coursemarket/services/certificate"
	"coursemarket/services/enrollment"
	"coursemarket/services/notification"
	"coursemarket/services/payment"
	"coursemarket/services/telebirr"
	"coursemarket/utils"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var version = "dev"

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	utils.InitMonitoring(cfg.RollbarToken, cfg.Env, version)
	defer utils.FlushMonitoring()

	db := database.ConnectDb(cfg)

	var mailer notification.Mailer
	if cfg.SendgridAPIKey != "" {
		mailer = notification.NewSendgridMailer(cfg.SendgridAPIKey, cfg.AppName, cfg.EmailSender)
	} else {
		log.Println("[NOTIFY] SENDGRID_API_KEY not set, e-mail delivery disabled")
	}
	notifier := notification.NewService(db, mailer, cfg.AppName)

	issuer := certificate.NewIssuer(db, notifier)
	enrollments := enrollment.NewService(db, issuer, notifier)

	var gateway payment.Gateway
	telebirrCfg := telebirr.Config{
		BaseURL:            cfg.TelebirrBaseURL,
		WebBaseURL:         cfg.TelebirrWebBaseURL,
		FabricAppID:        cfg.TelebirrFabricAppID,
		AppSecret:          cfg.TelebirrAppSecret,
		MerchantAppID:      cfg.TelebirrMerchantAppID,
		MerchantCode:       cfg.TelebirrMerchantCode,
		PrivateKey:         cfg.TelebirrPrivateKey,
		PublicKey:          cfg.TelebirrPublicKey,
		NotifyURL:          cfg.TelebirrNotifyURL,
		RedirectURL:        cfg.TelebirrRedirectURL,
		Timeout:            time.Duration(cfg.TelebirrTimeoutSeconds) * time.Second,
		InsecureSkipVerify: cfg.TelebirrInsecureSkipVerify,
	}
	if telebirrCfg.Configured() {
		client, err := telebirr.NewClient(telebirrCfg)
		if err != nil {
			log.Fatalf("Invalid Telebirr configuration: %v", err)
		}
		gateway = client
	} else {
		log.Println("[PAYMENT] Telebirr is not configured")
	}
	orchestrator := payment.NewOrchestrator(db, enrollments, gateway, payment.Options{
		Production:      cfg.IsProduction(),
		PlaceholderURL:  cfg.TelebirrPlaceholderURL,
		FallbackOnError: cfg.TelebirrFallbackOnError,
	})

	if cfg.AggregateRefreshCron != "" {
		scheduler, err := utils.InitializeAggregateScheduler(cfg.AggregateRefreshCron, enrollments.RefreshAllCourseAggregates)
		if err != nil {
			log.Fatalf("Scheduler setup failed: %v", err)
		}
		defer scheduler.Stop()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: middleware.FiberErrorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",        // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return middleware.JsonResponse(c, fiber.StatusOK, true, "OK", fiber.Map{
			"telebirr": gateway != nil,
			"version":  version,
		})
	})

	enrollmentHandler := enrollmentControllers.NewEnrollmentController(enrollments)
	enrollmentRoutes.SetupEnrollmentRoutes(app, enrollmentHandler)
	courseRoutes.SetupCourseRoutes(app, enrollmentHandler)
	paymentRoutes.SetupPaymentRoutes(app, paymentControllers.NewPaymentController(orchestrator))
	certificateRoutes.SetupCertificateRoutes(app, certificateControllers.NewCertificateController(issuer))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("Server stopped: %v", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), notification.DefaultMailTimeout)
	defer cancel()
	if err := notifier.Drain(drainCtx); err != nil {
		log.Printf("[NOTIFY] %v", err)
	}
}
