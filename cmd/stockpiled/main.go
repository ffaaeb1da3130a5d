// Package main provides stockpiled, the remote execution server backing
// the postgres and mongodb storage modes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/server"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LISTEN_ADDR", ":8080")

	listenAddr := v.GetString("LISTEN_ADDR")
	databaseURL := v.GetString("DATABASE_URL")
	mongoURI := v.GetString("MONGODB_URI")
	mongoDBName := v.GetString("MONGODB_DB_NAME")
	username := v.GetString("ADMIN_USERNAME")
	password := v.GetString("ADMIN_PASSWORD")

	if username == "" || password == "" {
		log.Fatal("ADMIN_USERNAME and ADMIN_PASSWORD must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	if databaseURL != "" {
		pool, err = pgxpool.New(ctx, databaseURL)
		if err != nil {
			log.Fatal("connect relational database", zap.Error(err))
		}
		if err := pool.Ping(ctx); err != nil {
			log.Fatal("ping relational database", zap.Error(err))
		}
		defer pool.Close()
		log.Info("relational database connected")
	}

	var mongoDB *mongo.Database
	if mongoURI != "" {
		if mongoDBName == "" {
			mongoDBName = "stockpile"
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			log.Fatal("connect document database", zap.Error(err))
		}
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal("ping document database", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		mongoDB = client.Database(mongoDBName)
		log.Info("document database connected", zap.String("database", mongoDBName))
	}

	app := server.New(server.Config{
		Username: username,
		Password: password,
		Pool:     pool,
		Mongo:    mongoDB,
		Log:      log,
	})

	go func() {
		log.Info("listening", zap.String("addr", listenAddr))
		if err := app.Listen(listenAddr); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}
