package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/letterchat/letterchat/internal/chat"
	"github.com/letterchat/letterchat/internal/config"
	"github.com/letterchat/letterchat/internal/db"
	"github.com/letterchat/letterchat/internal/httpapi"
	"github.com/letterchat/letterchat/internal/models"
	"github.com/letterchat/letterchat/internal/store/rabbitmq"
	"github.com/letterchat/letterchat/internal/store/redisstore"
	"github.com/letterchat/letterchat/internal/upload"
	"github.com/letterchat/letterchat/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.UserSettings{},
		&chat.Chat{},
		&chat.ChatMember{},
		&chat.Message{},
		&chat.Receipt{},
		&chat.Deletion{},
		&chat.Campaign{},
		&chat.CampaignRecipient{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("redis unreachable at %s: %v", cfg.RedisAddr, err)
	}

	uploads, err := upload.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit: %v", err)
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	go hub.Run(ctx)

	r := httpapi.NewRouter(gdb, cfg, rds, hub, uploads, pub)

	log.Printf("api listening on %s", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
