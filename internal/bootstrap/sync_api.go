package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	apihttp "mailsync/adapter/in/http"
	"mailsync/config"
	"mailsync/infra/database"
	"mailsync/infra/middleware"
)

// NewAPI builds the fiber app over an already-wired dependency graph.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: !cfg.IsDevelopment(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
		StreamRequestBody:     true,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsDevelopment() {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		} else {
			allowOrigins = ""
			allowCredentials = false
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health (no auth)
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "online": deps.Processor.IsOnline()}
		if deps.Redis != nil {
			status["redis"] = database.GetRedisStats(deps.Redis)
		}
		return c.JSON(status)
	})

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth([]byte(cfg.JWTSecret), deps.Log))

	modifierHandler := apihttp.NewModifierHandler(deps.Intake, deps.Queue, deps.Processor, deps.Completed, deps.Log)
	modifierHandler.Register(api)

	conflictHandler := apihttp.NewConflictHandler(deps.ConflictRepo, deps.Reconciler, deps.Resolver, deps.Log)
	conflictHandler.Register(api)

	statusHandler := apihttp.NewStatusHandler(deps.Buckets, deps.Breakers, deps.Processor, deps.Realtime, deps.Log)
	statusHandler.Register(api)

	sseHandler := apihttp.NewSSEHandler(deps.Realtime, deps.Log)
	sseHandler.Register(api)

	return app
}
