// Command snakebot is a headless client that joins a snake server and
// chases the food.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cawio/snake/channel"
	"github.com/cawio/snake/internal/config"
	"github.com/cawio/snake/internal/logging"
	"github.com/cawio/snake/protocol"
	"github.com/cawio/snake/view"
)

func main() {
	addr := flag.String("addr", "ws://localhost:3000/ws", "Server websocket URL")
	name := flag.String("name", "", "Username (default: bot-<client id>)")
	enc := flag.String("enc", "json", "Frame encoding: json or msgpack")
	grid := flag.Int("grid", 20, "Board size the server runs with")
	confirm := flag.Bool("confirm-reconnect", false, "Do not reconnect automatically")
	flag.Parse()

	cfg := config.Default()
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bot{addr: *addr, name: *name, enc: *enc, grid: *grid, confirm: *confirm, log: log}
	if err := b.run(ctx); err != nil {
		log.Errorw("bot stopped", "err", err)
		log.Sync()
		os.Exit(1)
	}
}

type bot struct {
	addr    string
	name    string
	enc     string
	grid    int
	confirm bool
	log     *zap.SugaredLogger
}

func (b *bot) run(ctx context.Context) error {
	codec, ok := protocol.CodecByName(b.enc)
	if !ok {
		return fmt.Errorf("unknown encoding %q", b.enc)
	}

	id := channel.NewClientID()
	if b.name == "" {
		b.name = "bot-" + id
	}
	base := b.addr
	if codec != protocol.JSON {
		base += "?enc=" + codec.Name()
	}
	address, err := channel.Address(base, id)
	if err != nil {
		return fmt.Errorf("building address: %w", err)
	}

	policy := channel.AutoReconnect
	if b.confirm {
		policy = channel.ConfirmReconnect
	}
	ch := channel.New(
		channel.WithCodec(codec),
		channel.WithPolicy(policy),
		channel.WithLogger(b.log.Named("channel")),
	)
	defer ch.Close()

	rec := view.NewReconciler(id)
	rejected := make(chan protocol.ErrorData, 4)
	rec.OnError(func(e protocol.ErrorData) {
		select {
		case rejected <- e:
		default:
		}
	})

	// view state below is only touched from the Follow goroutine
	var (
		heading   = protocol.Right
		alive     bool
		lastScore int
	)
	rec.Subscribe(func(v view.View) {
		me, ok := v.Me()
		if !ok {
			if alive {
				b.log.Infow("snake died", "score", lastScore)
			}
			alive = false
			return
		}
		if !alive {
			// fresh snake, spawned heading right
			heading = protocol.Right
			alive = true
		}
		heading = currentHeading(me, heading)
		lastScore = v.Score

		next := steer(v, heading, b.grid)
		if next == heading {
			return
		}
		if err := ch.Send(protocol.Move(next)); err != nil {
			b.log.Debugw("move not sent", "err", err)
			return
		}
		heading = next
	})
	go rec.Follow(ctx, ch.Messages())

	if err := ch.Connect(ctx, address); err != nil && policy == channel.ConfirmReconnect {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			ch.Send(protocol.Leave())
			return nil

		case e, ok := <-ch.Events():
			if !ok {
				return nil
			}
			switch e.Type {
			case channel.Opened:
				b.log.Infow("connected, joining", "id", id, "name", b.name)
				if err := ch.Send(protocol.Join(b.name)); err != nil {
					b.log.Warnw("join not sent", "err", err)
				}
			case channel.Closed:
				b.log.Infow("connection closed", "state", ch.State())
				if policy == channel.ConfirmReconnect {
					return errors.New("connection closed")
				}
			case channel.Errored:
				b.log.Warnw("connection error", "err", e.Err)
			}

		case e := <-rejected:
			if e.Code != protocol.CodeUsernameTaken {
				b.log.Warnw("request rejected", "code", e.Code, "message", e.Message)
				continue
			}
			taken := b.name
			b.name = "bot-" + channel.NewClientID()
			b.log.Infow("username taken, joining again", "taken", taken, "name", b.name)
			if err := ch.Send(protocol.Join(b.name)); err != nil {
				b.log.Warnw("join not sent", "err", err)
			}
		}
	}
}
