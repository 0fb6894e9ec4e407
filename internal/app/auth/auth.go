// Package auth собирает gRPC-сервис авторизации.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/grpc/authpb"
	"github.com/magabrotheeeer/schoolhub/internal/grpc/server"
	"github.com/magabrotheeeer/schoolhub/internal/lib/jwt"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	authservice "github.com/magabrotheeeer/schoolhub/internal/services/auth"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// App gRPC-сервер авторизации.
type App struct {
	grpcServer *grpc.Server
	listener   net.Listener
	db         *repository.Storage
	logger     *slog.Logger
}

// New подключает хранилище и открывает порт cfg.GRPCAuthAddress.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := authservice.NewService(db, jwtMaker)

	lis, err := net.Listen("tcp", cfg.GRPCAuthAddress)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to listen %s: %w", cfg.GRPCAuthAddress, err)
	}

	grpcServer := grpc.NewServer()
	authpb.RegisterAuthServiceServer(grpcServer, server.NewAuthServer(authService, logger))

	return &App{
		grpcServer: grpcServer,
		listener:   lis,
		db:         db,
		logger:     logger,
	}, nil
}

// Run обслуживает запросы до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("auth gRPC service listening on", slog.String("address", a.listener.Addr().String()))
		errCh <- a.grpcServer.Serve(a.listener)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down auth gRPC service")
		a.grpcServer.GracefulStop()
	case err = <-errCh:
	}

	if closeErr := a.db.Close(); closeErr != nil {
		a.logger.Error("failed to close storage", sl.Err(closeErr))
	}
	return err
}
