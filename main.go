package main

import (
	"context"
	"errors"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/alirezanaghdi47/messenger-backend/internal/api"
	"github.com/alirezanaghdi47/messenger-backend/internal/chat"
	"github.com/alirezanaghdi47/messenger-backend/internal/config"
	"github.com/alirezanaghdi47/messenger-backend/internal/content"
	"github.com/alirezanaghdi47/messenger-backend/internal/http"
	"github.com/alirezanaghdi47/messenger-backend/internal/media"
	"github.com/alirezanaghdi47/messenger-backend/internal/message"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
	"github.com/alirezanaghdi47/messenger-backend/internal/presence"
	"github.com/alirezanaghdi47/messenger-backend/internal/storage"
	"github.com/alirezanaghdi47/messenger-backend/internal/ws"
)

// gatewayVerifier trusts the fronting gateway: the token is the user id
// it forwards after authenticating the client. A user record is created
// on first sight so chats can reference it.
type gatewayVerifier struct {
	store *storage.BboltStore
}

func (v gatewayVerifier) Verify(token string) (string, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return "", errors.New("malformed token")
	}

	userID := id.String()
	if _, err := v.store.GetUser(userID); models.IsNotFound(err) {
		err = v.store.UpsertUser(models.User{
			ID:       userID,
			UserName: "user-" + userID[:8],
		})
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	return userID, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return err
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	store, err := storage.NewBboltStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	mediaStore, err := media.NewStore(cfg.UploadsPath)
	if err != nil {
		return err
	}
	pipeline := media.NewPipeline(mediaStore, media.FFProber{}, media.FFMpegThumbnailer{}, log)

	var registry presence.Registry
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		registry = presence.NewRedisRegistry(client)
		log.Info("presence backed by redis", "addr", cfg.RedisAddr)
	} else {
		registry = presence.NewMemoryRegistry()
	}

	hub := ws.NewHub(registry, log)
	verifier := gatewayVerifier{store: store}

	messageService := message.New(store, pipeline, hub, content.Sanitize, content.RenderMarkdown, log)
	chatService := chat.New(store, messageService, pipeline, log)

	handlers := api.New(chatService, messageService, store, pipeline, hub, verifier, log)
	wsServer := ws.NewServer(verifier, hub, log)
	apiServer := http.NewAPIServer(handlers, wsServer, cfg.APIAddr, log)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
