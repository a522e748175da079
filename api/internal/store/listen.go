package store

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

const notifyChannel = "water_samples"

// Listen holds a dedicated Postgres connection on LISTEN water_samples and
// signals the returned channel on every insert. Reconnects with backoff until
// ctx is done; the channel is never closed.
func Listen(ctx context.Context, dsn string) <-chan struct{} {
	wake := make(chan struct{}, 1)
	go func() {
		delay := time.Second
		for ctx.Err() == nil {
			err := listenOnce(ctx, dsn, wake)
			if ctx.Err() != nil {
				return
			}
			log.Printf("store listen: %v; retry in %v", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay < 15*time.Second {
				delay *= 2
			}
		}
	}()
	return wake
}

func listenOnce(ctx context.Context, dsn string, wake chan<- struct{}) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "listen "+notifyChannel); err != nil {
		return err
	}
	log.Printf("store listen: subscribed to %s", notifyChannel)
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
