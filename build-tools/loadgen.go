//go:build ignore

// Run: go run ./build-tools/loadgen.go -addr :9901 -rps 50 -pool 1 -token uzig
//
// Serves a websocket endpoint that speaks the upstream subscribe protocol
// and pushes randomized trade events, for exercising the feed end to end.

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type TradeEvent struct {
	CreatedAt    string `json:"createdAt"` // RFC3339
	TxHash       string `json:"txHash"`
	TradeID      string `json:"tradeId"`
	Direction    string `json:"direction"`
	OfferDenom   string `json:"offerDenom"`
	AskDenom     string `json:"askDenom"`
	OfferAmount  string `json:"offerAmount"`
	ReturnAmount string `json:"returnAmount"`
	ZigUsdPrice  string `json:"zigUsdAtTrade"`
	Signer       string `json:"signer"`
	PairContract string `json:"pairContract"`
	Action       string `json:"action"`
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func main() {
	var (
		addr  = flag.String("addr", ":9901", "listen address")
		rps   = flag.Int("rps", 50, "events per second target")
		pool  = flag.Int64("pool", 1, "pool id echoed in subscription acks")
		token = flag.String("token", "uzig", "counterparty denom of generated trades")
	)
	flag.Parse()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Printf("upgrade error: %v\n", err)
			return
		}
		defer conn.Close()

		// wait for the subscribe frame before emitting anything
		var sub map[string]any
		if err = conn.ReadJSON(&sub); err != nil {
			fmt.Printf("subscribe read error: %v\n", err)
			return
		}
		fmt.Printf("subscriber connected: %v\n", sub)

		serve(ctx, conn, *rps, *pool, *token)
	})

	srv := &http.Server{Addr: *addr}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	fmt.Printf("loadgen listening on %s (rps=%d)\n", *addr, *rps)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("serve error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, conn *websocket.Conn, rps int, pool int64, token string) {
	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(rps) / 10.0
	accum := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			events := make([]*TradeEvent, 0, batch)
			for i := 0; i < batch; i++ {
				events = append(events, randomTrade(pool, token))
			}

			if err := conn.WriteJSON(envelope{Type: "trade", Data: events}); err != nil {
				fmt.Printf("write error, dropping subscriber: %v\n", err)
				return
			}
		}
	}
}

func randomTrade(pool int64, token string) *TradeEvent {
	now := time.Now().UTC()

	tx := strings.ToUpper(randHex(64))
	signer := "zig1" + randHex(38)
	pair := "zig1" + randHex(38)

	direction := "buy"
	offer, ask := "uzig", token
	if mrand.Intn(2) == 0 {
		direction = "sell"
		offer, ask = token, "uzig"
	}

	offerAmount := fmt.Sprintf("%.6f", 10+mrand.Float64()*20000)
	returnAmount := fmt.Sprintf("%.6f", 10+mrand.Float64()*20000)

	return &TradeEvent{
		CreatedAt:    now.Format(time.RFC3339Nano),
		TxHash:       tx,
		TradeID:      fmt.Sprintf("%d:%s", pool, tx),
		Direction:    direction,
		OfferDenom:   offer,
		AskDenom:     ask,
		OfferAmount:  offerAmount,
		ReturnAmount: returnAmount,
		ZigUsdPrice:  fmt.Sprintf("%.4f", 0.01+mrand.Float64()*0.1),
		Signer:       signer,
		PairContract: pair,
		Action:       "swap",
	}
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
