// Command client drives one order round trip against the venue simulator:
// dial, authenticate, resolve a symbol, place a market order, and print the
// fill. Useful for eyeballing the protocol without the full relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"main/internal/engine"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/session"
	"main/internal/symbols"
	"main/pkg/frame"
)

func main() {
	addr := flag.String("addr", "localhost:5035", "Simulator address")
	asset := flag.String("asset", "EURUSD", "Asset name to trade")
	side := flag.String("side", "buy", "buy or sell")
	flag.Parse()

	host, portRaw, ok := strings.Cut(*addr, ":")
	if !ok {
		log.Fatalf("addr must be host:port")
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		log.Fatalf("bad port: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := frame.Dial(ctx, frame.Option{Host: host, Port: port, InsecureSkipVerify: true})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}

	sess := session.New(tr, session.Option{})
	go func() {
		if err := sess.Run(ctx); err != nil {
			log.Printf("session ended: %v", err)
		}
	}()
	defer sess.Close()

	if err := sess.AuthenticateApp(ctx, "client", "secret"); err != nil {
		log.Fatalf("app auth: %v", err)
	}
	if err := sess.AuthenticateAccount(ctx, 77, "token"); err != nil {
		log.Fatalf("account auth: %v", err)
	}

	dir := symbols.New(sess, 77)
	eng := engine.New(sess, dir, engine.Option{AccountID: 77, DefaultLots: 0.1})

	orderSide := enum.OrderSideBuy
	if strings.EqualFold(*side, "sell") {
		orderSide = enum.OrderSideSell
	}

	res, err := eng.Place(ctx, model.Instruction{
		ID:    fmt.Sprintf("manual-%d", time.Now().Unix()),
		Asset: *asset,
		Side:  orderSide,
	}, enum.OrderKindMarket, 0)
	if err != nil {
		log.Fatalf("place: %v", err)
	}

	fmt.Printf("filled: position=%d price=%g volume=%d protective=%t\n",
		res.PositionID, res.ExecPrice, res.Volume, res.ProtectiveApplied)
}
