package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"bookly/backend/internal/config"
	"bookly/backend/internal/events"
	"bookly/backend/internal/reservation"
	"bookly/backend/internal/service/booking"
	"bookly/backend/internal/store"
	"bookly/backend/internal/store/memory"
	"bookly/backend/internal/store/postgres"
	redisstore "bookly/backend/internal/store/redis"
	"bookly/backend/migrations"
)

type publisher interface {
	booking.ChangePublisher
	io.Closer
}

type dependencies struct {
	appointments store.AppointmentRepository
	schedules    store.ScheduleRepository
	holds        *reservation.Manager
	publisher    publisher
	closers      []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// close releases resources in reverse acquisition order.
func (d *dependencies) close(log *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.fn(); err != nil {
			log.Warn("close failed", slog.String("resource", c.name), slog.Any("err", err))
		}
	}
}

func poolConfig(cfg config.Config) postgres.PoolConfig {
	return postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}

func buildDependencies(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *dependencies, err error) {
	deps := &dependencies{}
	defer func() {
		if err != nil {
			deps.close(log)
		}
	}()

	var db *bun.DB
	if cfg.UsesPostgres() {
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err = postgres.Open(ctx, cfg.DatabaseURL, poolConfig(cfg))
		if err != nil {
			log.Error("database connection failed", slog.Any("err", err))
			return nil, fmt.Errorf("database connection: %w", err)
		}
		deps.closers = append(deps.closers, namedCloser{"postgres", func() error { return postgres.Close(db) }})

		n, err := postgres.Migrate(ctx, db, migrations.FS, log)
		if err != nil {
			return nil, err
		}
		log.Info("database ready", slog.Int("migrations_applied", n))
	}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		deps.appointments = postgres.NewAppointmentRepo(db)
		deps.schedules = postgres.NewScheduleRepo(db)
	default:
		deps.appointments = memory.NewAppointmentRepo()
		deps.schedules = memory.NewScheduleRepo()
	}

	var holdStore reservation.Store
	switch cfg.ReservationsDriver {
	case config.StorePostgres:
		holdStore = postgres.NewReservationRepo(db)
	case config.StoreRedis:
		rdb, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Error("redis connection failed", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		deps.closers = append(deps.closers, namedCloser{"redis", rdb.Close})
		holdStore = redisstore.NewReservationStore(rdb, cfg.RedisPrefix)
	default:
		holdStore = reservation.NewMemoryStore()
	}
	deps.holds = reservation.NewManager(holdStore, reservation.Options{
		HoldWindow: cfg.HoldWindow,
		Logger:     log,
	})

	if strings.TrimSpace(cfg.KafkaBrokers) != "" {
		log.Info("publishing status changes",
			slog.String("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
		deps.publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, log)
	} else {
		deps.publisher = events.Nop{}
	}
	deps.closers = append(deps.closers, namedCloser{"publisher", deps.publisher.Close})

	return deps, nil
}
