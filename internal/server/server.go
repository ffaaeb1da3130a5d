// Package server is the remote execution side of the storage layer: a
// small HTTP API that runs translated SQL against a relational pool and
// CRUD descriptors against a document database, wrapping every response
// in the {success, data} envelope the remote clients decode.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Config wires the server's dependencies. Either database handle may be
// nil; the matching routes then answer 503.
type Config struct {
	Username string
	Password string
	Pool     *pgxpool.Pool
	Mongo    *mongo.Database
	Log      *zap.Logger
}

// New builds the fiber application with all routes registered.
func New(config Config) *fiber.App {
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "stockpiled",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"status": "ok"}})
	})

	api := app.Group("", requireBasicAuth(config.Username, config.Password))
	api.Post("/postgres", relationalHandler(config.Pool, log))
	api.Post("/mongodb", documentHandler(config.Mongo, log))
	api.Post("/setup", setupHandler(config.Pool, log))

	return app
}

// ok wraps data in the success envelope.
func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// fail writes an error envelope with the given status.
func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": "database operation failed", "message": message})
}
