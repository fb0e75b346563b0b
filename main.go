package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront-service/handlers"
	"storefront-service/internal/analytics"
	"storefront-service/internal/auth"
	"storefront-service/internal/cart"
	"storefront-service/internal/catalog"
	"storefront-service/internal/config"
	"storefront-service/internal/consul"
	"storefront-service/internal/orders"
	"storefront-service/internal/payment"
	"storefront-service/internal/stores/kafka"
	"storefront-service/internal/stores/postgres"
	redisstore "storefront-service/internal/stores/redis"
	"storefront-service/internal/users"
	"storefront-service/middleware"
	"storefront-service/pkg/logkey"
)

const catalogCacheTTL = 5 * time.Minute

func main() {
	seedAdmin := flag.String("seed-admin", "", "create an Admin account with this email and exit")
	seedPassword := flag.String("seed-password", "", "password for -seed-admin")
	flag.Parse()

	if err := startApp(*seedAdmin, *seedPassword); err != nil {
		slog.Error("application stopped", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func startApp(seedAdmin, seedPassword string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	/*
		//------------------------------------------------------//
		//                 Setting up DB & Migrations           //
		//------------------------------------------------------//
	*/
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := postgres.Migrate(db); err != nil {
		return err
	}
	slog.Info("database ready")

	keys, err := auth.NewKeys(cfg.JwtSecret, cfg.JwtIssuer, cfg.JwtAudience, time.Duration(cfg.JwtExpiryMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("setting up auth keys: %w", err)
	}
	userConf, err := users.NewConf(db, keys)
	if err != nil {
		return err
	}

	if seedAdmin != "" {
		admin, err := userConf.CreateAdmin(ctx, users.NewUser{
			FirstName: "Store", LastName: "Admin", Email: seedAdmin, Password: seedPassword,
		})
		if err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}
		slog.Info("admin account created", slog.Uint64(logkey.UserID, uint64(admin.ID)), slog.String("email", admin.Email))
		return nil
	}

	/*
		//------------------------------------------------------//
		//                 Optional Redis & Kafka               //
		//------------------------------------------------------//
	*/
	var cache catalog.Cache
	var limiter middleware.Limiter
	redisClient, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("running without redis: catalog cache disabled, in-process rate limiting", slog.String(logkey.ERROR, err.Error()))
	} else {
		defer redisClient.Close()
		c, err := redisstore.NewCache(redisClient, catalogCacheTTL)
		if err != nil {
			return err
		}
		cache = c
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute)
	}

	var orderOpts []orders.Option
	var paidPublisher payment.Publisher
	kafkaConf, err := kafka.NewConf(cfg.KafkaBrokerList())
	if err != nil {
		slog.Warn("running without kafka: order events will not be published", slog.String(logkey.ERROR, err.Error()))
	} else {
		defer kafkaConf.Close()
		if err := kafkaConf.EnsureTopics(ctx); err != nil {
			slog.Warn("could not ensure kafka topics", slog.String(logkey.ERROR, err.Error()))
		}
		orderOpts = append(orderOpts, orders.WithPublisher(kafkaConf))
		paidPublisher = kafkaConf
	}

	/*
		//------------------------------------------------------//
		//                 Services                             //
		//------------------------------------------------------//
	*/
	catalogConf, err := catalog.NewConf(db, cache)
	if err != nil {
		return err
	}
	cartConf, err := cart.NewConf(db)
	if err != nil {
		return err
	}
	orderOpts = append(orderOpts, orders.WithStrictTransitions(cfg.StrictOrderTransitions), orders.WithProductInvalidator(catalogConf))
	orderConf, err := orders.NewConf(db, orderOpts...)
	if err != nil {
		return err
	}
	processor, err := payment.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	if err != nil {
		return fmt.Errorf("setting up stripe: %w", err)
	}
	paymentConf, err := payment.NewConf(db, processor, cfg.StripeCurrency, paidPublisher)
	if err != nil {
		return err
	}
	analyticsConf, err := analytics.NewConf(db)
	if err != nil {
		return err
	}

	router, err := handlers.API(cfg.EndpointPrefix, cfg.GinMode, keys,
		handlers.RateLimit{Limiter: limiter, PerMinute: cfg.RateLimitPerMinute},
		handlers.Services{
			Users:     userConf,
			Catalog:   catalogConf,
			Cart:      cartConf,
			Orders:    orderConf,
			Payment:   paymentConf,
			Analytics: analyticsConf,
		})
	if err != nil {
		return err
	}

	/*
		//------------------------------------------------------//
		//                 HTTP & gRPC servers                  //
		//------------------------------------------------------//
	*/
	api := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 800 * time.Second,
		IdleTimeout:  800 * time.Second,
	}
	grpcServer, healthServer := handlers.NewGRPCServer(cartConf)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
	if err != nil {
		return fmt.Errorf("listening on grpc port: %w", err)
	}

	if cfg.ConsulAddr != "" {
		serviceID, err := registerWithConsul(cfg)
		if err != nil {
			slog.Warn("consul registration failed", slog.String(logkey.ERROR, err.Error()))
		} else {
			defer deregisterFromConsul(cfg, serviceID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api started", slog.String("addr", api.Addr))
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("grpc started", slog.String("addr", grpcLis.Addr().String()))
		if err := grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		if err := api.Shutdown(shutdownCtx); err != nil {
			_ = api.Close()
			return fmt.Errorf("could not stop api gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func registerWithConsul(cfg *config.Config) (string, error) {
	client, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		return "", err
	}
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil {
		return "", fmt.Errorf("invalid SERVER_PORT %q: %w", cfg.ServerPort, err)
	}
	id, err := consul.RegisterService(client, cfg.ServiceName, cfg.ServiceHost, port)
	if err != nil {
		return "", err
	}
	slog.Info("registered with consul", slog.String("service_id", id))
	return id, nil
}

func deregisterFromConsul(cfg *config.Config, serviceID string) {
	client, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		slog.Warn("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := consul.DeregisterService(client, serviceID); err != nil {
		slog.Warn("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
	}
}
