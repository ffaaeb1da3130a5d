package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// sqlRequest is the relational wire body.
type sqlRequest struct {
	Method string `json:"method"`
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

// relationalHandler executes translated SQL against the pool. Methods:
// run (writes, reporting {lastInsertRowid, changes}), get (first row or
// null), all (every row).
func relationalHandler(pool *pgxpool.Pool, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pool == nil {
			return fail(c, fiber.StatusServiceUnavailable, "relational database is not configured")
		}

		var req sqlRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid JSON body")
		}
		if req.Method == "" || req.Query == "" {
			return fail(c, fiber.StatusBadRequest, "method and SQL query required")
		}

		ctx := c.UserContext()

		switch req.Method {
		case "run":
			if strings.Contains(strings.ToUpper(req.Query), "RETURNING") {
				var id any
				err := pool.QueryRow(ctx, req.Query, req.Params...).Scan(&id)
				if err != nil && err != pgx.ErrNoRows {
					log.Error("relational run failed", zap.String("query", req.Query), zap.Error(err))
					return fail(c, fiber.StatusInternalServerError, err.Error())
				}
				return ok(c, fiber.Map{"lastInsertRowid": id, "changes": 1})
			}
			tag, err := pool.Exec(ctx, req.Query, req.Params...)
			if err != nil {
				log.Error("relational run failed", zap.String("query", req.Query), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": nil, "changes": tag.RowsAffected()})

		case "get":
			rows, err := queryRows(c, pool, req)
			if err != nil {
				log.Error("relational get failed", zap.String("query", req.Query), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			if len(rows) == 0 {
				return ok(c, nil)
			}
			return ok(c, rows[0])

		case "all":
			rows, err := queryRows(c, pool, req)
			if err != nil {
				log.Error("relational all failed", zap.String("query", req.Query), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, rows)
		}

		return fail(c, fiber.StatusBadRequest, "invalid method, use run, get, or all")
	}
}

func queryRows(c *fiber.Ctx, pool *pgxpool.Pool, req sqlRequest) ([]map[string]any, error) {
	rows, err := pool.Query(c.UserContext(), req.Query, req.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
