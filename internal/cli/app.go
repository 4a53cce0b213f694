package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"school-meals/internal/config"
	"school-meals/internal/connections/database"
	"school-meals/internal/connections/rabbitmq"
	"school-meals/internal/fulfillment"
	"school-meals/internal/inventory"
	"school-meals/internal/logger"
	"school-meals/internal/payment"
	"school-meals/internal/queue"
	"school-meals/internal/repository"
)

// app wires the shared collaborators every subcommand needs: the order
// store, the message queue, and the fulfillment engine on top of them.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	pool   *pgxpool.Pool
	rmq    *rabbitmq.Client
	rq     *queue.Rabbit
	engine *fulfillment.Engine
	store  *repository.OrderRepository
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New("fulfillment")

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{cfg: cfg, log: log, pool: pool}

	var q queue.Queue
	switch cfg.Queue.Driver {
	case "memory":
		q = queue.NewMemory(cfg.Queue.VisibilityTimeout, cfg.Queue.DeliveryLimit)
	default:
		rmq, err := rabbitmq.Dial(cfg.Rabbit)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.rmq = rmq
		rq, err := queue.NewRabbit(rmq, cfg.Queue, cfg.Engine.BatchSize, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open fulfillment queue: %w", err)
		}
		a.rq = rq
		q = rq
	}

	a.store = repository.NewOrderRepository(pool)
	a.engine = fulfillment.NewEngine(
		a.store,
		q,
		inventory.NewStore(pool),
		payment.NewClient(cfg.Payment),
		repository.NewDeliveryRepository(pool),
		cfg.Engine,
		log,
	)
	return a, nil
}

func (a *app) close() {
	if a.rq != nil {
		a.rq.Close()
	}
	if a.rmq != nil {
		a.rmq.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
