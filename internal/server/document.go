package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// docRequest is the document wire body. Data is an object for the
// single-document methods, an array for insertMany, and carries the
// pipeline for aggregate.
type docRequest struct {
	Method     string         `json:"method"`
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`
	Data       any            `json:"data"`
	Options    docOptions     `json:"options"`
}

type docOptions struct {
	Sort map[string]int `json:"sort"`
}

// validDocMethods gates dispatch before the database handle is touched.
var validDocMethods = map[string]bool{
	"insertOne":  true,
	"insertMany": true,
	"findOne":    true,
	"find":       true,
	"updateOne":  true,
	"updateMany": true,
	"deleteOne":  true,
	"deleteMany": true,
	"aggregate":  true,
	"count":      true,
}

// documentHandler maps CRUD descriptors onto native collection calls.
// Write methods report {lastInsertRowid, changes} so both remote
// backends share one result shape.
func documentHandler(db *mongo.Database, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req docRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid JSON body")
		}
		if req.Method == "" || req.Collection == "" {
			return fail(c, fiber.StatusBadRequest, "method and collection required")
		}
		if !validDocMethods[req.Method] {
			return fail(c, fiber.StatusBadRequest, "invalid method")
		}
		if db == nil {
			return fail(c, fiber.StatusServiceUnavailable, "document database is not configured")
		}

		ctx := c.UserContext()
		coll := db.Collection(req.Collection)
		filter := buildFilter(req.Filter)

		switch req.Method {
		case "insertOne":
			res, err := coll.InsertOne(ctx, asDoc(req.Data))
			if err != nil {
				log.Error("document insert failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": stringifyID(res.InsertedID), "changes": 1})

		case "insertMany":
			res, err := coll.InsertMany(ctx, asDocs(req.Data))
			if err != nil {
				log.Error("document insertMany failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			first := ""
			if len(res.InsertedIDs) > 0 {
				first = stringifyID(res.InsertedIDs[0])
			}
			return ok(c, fiber.Map{"lastInsertRowid": first, "changes": len(res.InsertedIDs)})

		case "findOne":
			var doc bson.M
			err := coll.FindOne(ctx, filter).Decode(&doc)
			if err == mongo.ErrNoDocuments {
				return ok(c, nil)
			}
			if err != nil {
				log.Error("document findOne failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, convertDoc(doc))

		case "find":
			opts := options.Find()
			if len(req.Options.Sort) > 0 {
				sort := bson.D{}
				for field, dir := range req.Options.Sort {
					sort = append(sort, bson.E{Key: field, Value: dir})
				}
				opts.SetSort(sort)
			}
			cursor, err := coll.Find(ctx, filter, opts)
			if err != nil {
				log.Error("document find failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			docs, err := collectDocs(ctx, cursor)
			if err != nil {
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, docs)

		case "updateOne":
			res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": asDoc(req.Data)})
			if err != nil {
				log.Error("document update failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": nil, "changes": res.ModifiedCount, "matchedCount": res.MatchedCount})

		case "updateMany":
			res, err := coll.UpdateMany(ctx, filter, bson.M{"$set": asDoc(req.Data)})
			if err != nil {
				log.Error("document updateMany failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": nil, "changes": res.ModifiedCount, "matchedCount": res.MatchedCount})

		case "deleteOne":
			res, err := coll.DeleteOne(ctx, filter)
			if err != nil {
				log.Error("document delete failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": nil, "changes": res.DeletedCount})

		case "deleteMany":
			res, err := coll.DeleteMany(ctx, filter)
			if err != nil {
				log.Error("document deleteMany failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, fiber.Map{"lastInsertRowid": nil, "changes": res.DeletedCount})

		case "aggregate":
			cursor, err := coll.Aggregate(ctx, pipelineOf(req.Data))
			if err != nil {
				log.Error("document aggregate failed", zap.String("collection", req.Collection), zap.Error(err))
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			docs, err := collectDocs(ctx, cursor)
			if err != nil {
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, docs)

		case "count":
			count, err := coll.CountDocuments(ctx, filter)
			if err != nil {
				return fail(c, fiber.StatusInternalServerError, err.Error())
			}
			return ok(c, count)
		}

		return fail(c, fiber.StatusBadRequest, "invalid method")
	}
}

// asDoc reads the wire data field as a single document.
func asDoc(v any) bson.M {
	if m, ok := v.(map[string]any); ok {
		return bson.M(m)
	}
	return bson.M{}
}

// asDocs reads the wire data field as a document list, wrapping a single
// object into a one-element list the way the original endpoint did.
func asDocs(v any) []any {
	switch d := v.(type) {
	case []any:
		docs := make([]any, 0, len(d))
		for _, item := range d {
			docs = append(docs, asDoc(item))
		}
		return docs
	case map[string]any:
		return []any{bson.M(d)}
	}
	return []any{}
}

// pipelineOf extracts the aggregation pipeline from data.pipeline.
func pipelineOf(v any) []any {
	stages, _ := asDoc(v)["pipeline"].([]any)
	out := make([]any, 0, len(stages))
	for _, stage := range stages {
		out = append(out, asDoc(stage))
	}
	return out
}

func collectDocs(ctx context.Context, cursor *mongo.Cursor) ([]map[string]any, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, convertDoc(doc))
	}
	return out, nil
}

// buildFilter converts the wire filter to bson, promoting a hex-shaped
// _id value to a native object id. A malformed hex string stays raw so
// the lookup simply matches nothing.
func buildFilter(filter map[string]any) bson.M {
	out := bson.M{}
	for key, value := range filter {
		if key == "_id" {
			if hex, isString := value.(string); isString {
				if oid, err := primitive.ObjectIDFromHex(hex); err == nil {
					out[key] = oid
					continue
				}
			}
		}
		out[key] = value
	}
	return out
}

// convertDoc reshapes a native document for the wire: the object id
// surfaces as a string id field, and native datetimes flatten to RFC3339
// text.
func convertDoc(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case primitive.ObjectID:
			if key == "_id" {
				out["id"] = v.Hex()
			} else {
				out[key] = v.Hex()
			}
		case primitive.DateTime:
			out[key] = v.Time().UTC().Format(time.RFC3339)
		default:
			out[key] = value
		}
	}
	return out
}

func stringifyID(id any) string {
	if oid, isOID := id.(primitive.ObjectID); isOID {
		return oid.Hex()
	}
	return ""
}
