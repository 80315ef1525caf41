// Command server is a scripted venue simulator for manual end-to-end runs
// against the relay: it terminates TLS with a self-signed certificate,
// answers auth and catalog requests, fills every order immediately, and
// streams spot ticks to subscribers.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"flag"
	"log"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"main/internal/model/enum"
	"main/internal/wire"
	"main/pkg/frame"
)

var (
	orderSeq    int64
	positionSeq int64 = 1000
)

var catalog = []wire.LightSymbol{
	{ID: 1, Name: "EURUSD", Digits: 5},
	{ID: 2, Name: "GBPUSD", Digits: 5},
	{ID: 100, Name: "Volatility 25 Index", Digits: 3},
}

var lastPrice = map[int64]float64{1: 1.1000, 2: 1.2500, 100: 1234.5}

func main() {
	addr := flag.String("addr", "localhost:5035", "Listen address")
	flag.Parse()

	cert, err := selfSignedCert()
	if err != nil {
		log.Fatalf("certificate: %v", err)
	}

	l, err := tls.Listen("tcp", *addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer l.Close()
	log.Printf("venue simulator on %s", *addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		go serve(conn)
	}
}

func serve(conn net.Conn) {
	tr := frame.NewTransport(conn)
	defer tr.Close()
	log.Printf("session from %s", conn.RemoteAddr())

	var accountID int64
	for {
		raw, err := tr.ReadFrame()
		if err != nil {
			log.Printf("session %s ended: %v", conn.RemoteAddr(), err)
			return
		}
		env, err := wire.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("malformed envelope: %v", err)
			continue
		}

		switch env.PayloadType {
		case wire.PTHeartbeat:

		case wire.PTAppAuthReq:
			reply(tr, wire.PTAppAuthRes, nil, env.Token)

		case wire.PTAccountAuthReq:
			req, _ := wire.DecodeAccountAuthReq(env.Payload)
			accountID = req.AccountID
			res := wire.AccountAuthRes{AccountID: req.AccountID}
			reply(tr, wire.PTAccountAuthRes, res.Encode(nil), env.Token)

		case wire.PTSymbolsListReq:
			res := wire.SymbolsListRes{AccountID: accountID, Symbols: catalog}
			reply(tr, wire.PTSymbolsListRes, res.Encode(nil), env.Token)

		case wire.PTSymbolByIDReq:
			req, _ := wire.DecodeSymbolByIDReq(env.Payload)
			res := wire.SymbolByIDRes{AccountID: accountID, Symbol: detailFor(req.SymbolID)}
			reply(tr, wire.PTSymbolByIDRes, res.Encode(nil), env.Token)

		case wire.PTSubscribeSpotsReq:
			res := wire.SubscribeSpotsRes{AccountID: accountID, SubscriptionID: 1}
			reply(tr, wire.PTSubscribeSpotsRes, res.Encode(nil), env.Token)
			go streamSpots(tr)

		case wire.PTReconcileReq:
			res := wire.ReconcileRes{AccountID: accountID}
			reply(tr, wire.PTReconcileRes, res.Encode(nil), env.Token)

		case wire.PTNewOrderReq:
			req, err := wire.DecodeNewOrderReq(env.Payload)
			if err != nil {
				log.Printf("malformed order: %v", err)
				continue
			}
			fill := fillFor(req, accountID)
			log.Printf("fill order symbol=%d side=%d kind=%d volume=%d",
				req.SymbolID, req.Side, req.OrderKind, req.Volume)
			reply(tr, wire.PTExecutionEvent, fill.Encode(nil), "")

		case wire.PTAmendSLTPReq:
			// Silence is the success signal for amends.

		default:
			log.Printf("ignore payload type %s", wire.PayloadTypeName(env.PayloadType))
		}
	}
}

func reply(tr *frame.Transport, payloadType uint32, payload []byte, token string) {
	env := wire.EncodeEnvelope(nil, wire.Envelope{
		PayloadType: payloadType,
		Payload:     payload,
		Token:       token,
	})
	if err := tr.Send(env); err != nil {
		log.Printf("send %s: %v", wire.PayloadTypeName(payloadType), err)
	}
}

func fillFor(req wire.NewOrderReq, accountID int64) wire.ExecutionEvent {
	price := req.LimitPrice
	if price == 0 {
		price = req.StopPrice
	}
	if price == 0 {
		price = lastPrice[req.SymbolID]
	}
	return wire.ExecutionEvent{
		AccountID: accountID,
		ExecType:  enum.ExecTypeOrderFilled,
		Order: wire.OrderInfo{
			OrderID:   atomic.AddInt64(&orderSeq, 1),
			SymbolID:  req.SymbolID,
			Side:      req.Side,
			OrderKind: req.OrderKind,
			Volume:    req.Volume,
		},
		Position: wire.PositionInfo{
			PositionID: atomic.AddInt64(&positionSeq, 1),
			SymbolID:   req.SymbolID,
			Price:      price,
			Volume:     req.Volume,
		},
	}
}

func detailFor(id int64) wire.SymbolDetail {
	digits := int32(5)
	if id == 100 {
		digits = 3
	}
	return wire.SymbolDetail{
		ID:           id,
		Digits:       digits,
		MinVolume:    1000,
		MaxVolume:    10_000_000,
		StepVolume:   1000,
		TickValue:    0.5,
		ContractSize: 100_000,
	}
}

func streamSpots(tr *frame.Transport) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		for id, mid := range lastPrice {
			spot := wire.SpotEvent{SymbolID: id, Bid: mid - 0.0001, Ask: mid + 0.0001}
			env := wire.EncodeEnvelope(nil, wire.Envelope{
				PayloadType: wire.PTSpotEvent,
				Payload:     spot.Encode(nil),
			})
			if err := tr.Send(env); err != nil {
				return
			}
		}
	}
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
