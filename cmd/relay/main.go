package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pending"
	"main/internal/session"
	"main/internal/store"
	"main/internal/symbols"
	"main/pkg/conn"
	"main/pkg/frame"
)

const (
	redialBackoffMin = 2 * time.Second
	redialBackoffMax = 60 * time.Second
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if cfg.PyroscopeAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "venue/relay",
			ServerAddress:   cfg.PyroscopeAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	pg, err := conn.New(cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer pg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Ping(ctx); err != nil {
		log.Fatalf("postgres ping failed: %v", err)
	}

	st, err := store.New(pg.DB())
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	if err := st.Migrate(); err != nil {
		log.Fatalf("store migrate failed: %v", err)
	}

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(cfg.Trading.QueueCapacity, metrics)
	defer queue.Close()

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, nil)
	}

	go queue.Run(ctx, func(fill model.Fill) {
		logs.Infof("fill delivered downstream: %s %s position=%d price=%g volume=%d",
			fill.Asset, fill.Side, fill.PositionID, fill.Price, fill.Volume)
	})

	var current atomic.Pointer[pending.Manager]
	go readInstructions(ctx, os.Stdin, &current)

	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	runRelay(ctx, cfg, st, notifier, queue, metrics, &current)

	snap := metrics.Snapshot()
	var inbound uint64
	for _, v := range snap.InboundCounts {
		inbound += v
	}
	logs.Infof("shutdown: inbound=%d reconciled=%d subscriber_drops=%d queue_drops=%d requests=%d avg=%s",
		inbound, snap.Reconciled, snap.SubscriberDrops, snap.QueueDrops,
		snap.RequestLatency.Count, snap.RequestLatency.Avg)
}

// runRelay owns the connect/auth/serve loop. Any transport fault tears the
// whole session down and redials with backoff; waiters fail fast and the
// manager is rebuilt against the fresh session.
func runRelay(ctx context.Context, cfg ops.Loaded, st *store.Store, notifier notify.Notifier, queue *bus.Queue, metrics *obs.Metrics, current *atomic.Pointer[pending.Manager]) {
	backoff := redialBackoffMin

	for ctx.Err() == nil {
		err := serveOnce(ctx, cfg, st, notifier, queue, metrics, current)
		current.Store(nil)
		if ctx.Err() != nil {
			return
		}

		logs.Warnf("session ended, redialing in %s, err: %+v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > redialBackoffMax {
			backoff = redialBackoffMax
		}
	}
}

func serveOnce(ctx context.Context, cfg ops.Loaded, st *store.Store, notifier notify.Notifier, queue *bus.Queue, metrics *obs.Metrics, current *atomic.Pointer[pending.Manager]) error {
	tr, err := frame.Dial(ctx, frame.Option{
		Host:               cfg.Venue.Host,
		Port:               cfg.Venue.Port,
		InsecureSkipVerify: cfg.Venue.InsecureSkipVerify,
	})
	if err != nil {
		return err
	}

	sess := session.New(tr, session.Option{
		HeartbeatInterval: cfg.Venue.HeartbeatInterval,
		RequestTimeout:    cfg.Venue.RequestTimeout,
		Metrics:           metrics,
	})

	sessCtx, stop := context.WithCancel(ctx)
	defer stop()

	states, cancelStates := sess.Connection().SubscribeState()
	defer cancelStates()
	go func() {
		for ev := range states {
			if ev.Err != nil {
				logs.Warnf("connection %s, err: %+v", ev.State, ev.Err)
				continue
			}
			logs.Infof("connection %s", ev.State)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- sess.Run(sessCtx) }()
	defer func() {
		_ = sess.Close()
		<-done
	}()

	authCtx, cancelAuth := context.WithTimeout(sessCtx, cfg.Venue.RequestTimeout)
	defer cancelAuth()
	if err := sess.AuthenticateApp(authCtx, cfg.Auth.ClientID, cfg.Auth.ClientSecret); err != nil {
		return err
	}
	if err := sess.AuthenticateAccount(authCtx, cfg.Auth.AccountID, cfg.Auth.AccessToken); err != nil {
		return err
	}
	logs.Infof("session authenticated, account=%d", cfg.Auth.AccountID)

	dir := symbols.New(sess, cfg.Auth.AccountID)
	eng := engine.New(sess, dir, engine.Option{
		AccountID:   cfg.Auth.AccountID,
		DefaultLots: cfg.Trading.DefaultLots,
		RiskAmount:  cfg.Trading.RiskAmount,
		FillWait:    cfg.Trading.FillWait,
		AmendWait:   cfg.Trading.AmendWait,
		Metrics:     metrics,
	})
	mgr := pending.NewManager(sess, eng, dir, st, notifier, queue, pending.Option{
		AccountID: cfg.Auth.AccountID,
	})
	current.Store(mgr)

	// The deferred stop() ends the manager loop once the session exits.
	go mgr.Run(sessCtx)
	return <-done
}

// instructionInput mirrors the JSON shape the signal layer emits, one
// object per line.
type instructionInput struct {
	ID          string  `json:"id"`
	Asset       string  `json:"asset"`
	Side        string  `json:"side"`
	EntryPrice  float64 `json:"entryPrice"`
	StopLoss    float64 `json:"stopLoss"`
	TakeProfit  float64 `json:"takeProfit"`
	RawText     string  `json:"rawText"`
	OppositeLeg bool    `json:"oppositeLeg"`
}

func (i instructionInput) toInstruction() (model.Instruction, error) {
	if i.Asset == "" {
		return model.Instruction{}, errEmptyAsset
	}
	var side enum.OrderSide
	switch strings.ToUpper(i.Side) {
	case "BUY", "CALL":
		side = enum.OrderSideBuy
	case "SELL", "PUT":
		side = enum.OrderSideSell
	default:
		return model.Instruction{}, errBadSide
	}
	id := i.ID
	if id == "" {
		id = uuid.NewString()
	}
	return model.Instruction{
		ID:          id,
		Asset:       i.Asset,
		Side:        side,
		EntryPrice:  i.EntryPrice,
		StopLoss:    i.StopLoss,
		TakeProfit:  i.TakeProfit,
		RawText:     i.RawText,
		OppositeLeg: i.OppositeLeg,
		ReceivedAt:  time.Now(),
	}, nil
}

var (
	errEmptyAsset = errors.New("instruction asset is empty")
	errBadSide    = errors.New("instruction side is not buy/sell")
)

// readInstructions consumes newline-delimited JSON instructions until EOF.
// Instructions arriving while no session is live are rejected rather than
// queued; the signal layer owns redelivery.
func readInstructions(ctx context.Context, r io.Reader, current *atomic.Pointer[pending.Manager]) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var input instructionInput
		if err := sonic.ConfigFastest.Unmarshal(line, &input); err != nil {
			logs.Warnf("drop malformed instruction, err: %+v", err)
			continue
		}

		in, err := input.toInstruction()
		if err != nil {
			logs.Warnf("drop invalid instruction %s, err: %+v", input.ID, err)
			continue
		}

		mgr := current.Load()
		if mgr == nil {
			logs.Warnf("no live session, drop instruction %s", in.ID)
			continue
		}

		go func(in model.Instruction) {
			if _, err := mgr.Handle(ctx, in); err != nil {
				logs.Errorf("instruction %s failed, err: %+v", in.ID, err)
			}
		}(in)
	}
	if err := sc.Err(); err != nil {
		logs.Errorf("instruction input closed, err: %+v", err)
	}
}
