package server

import (
	_ "embed"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema_postgres.sql
var postgresSchema string

// setupHandler applies the relational schema. Safe to call repeatedly;
// every statement is IF NOT EXISTS.
func setupHandler(pool *pgxpool.Pool, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pool == nil {
			return fail(c, fiber.StatusServiceUnavailable, "relational database is not configured")
		}
		// No bind parameters, so Exec takes the simple-protocol path and
		// the whole multi-statement script runs in one round trip.
		if _, err := pool.Exec(c.UserContext(), postgresSchema); err != nil {
			log.Error("schema setup failed", zap.Error(err))
			return fail(c, fiber.StatusInternalServerError, err.Error())
		}
		log.Info("relational schema ensured")
		return ok(c, fiber.Map{"message": "schema ready"})
	}
}
