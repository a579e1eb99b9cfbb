// Command client connects to a running server's /ws endpoint and logs a summary of
// every window it receives.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	"github.com/gorilla/websocket"
)

type message struct {
	Type       string          `json:"type"`
	RunID      string          `json:"run_id"`
	Timestamps []int64         `json:"timestamps"`
	Channels   [][]float64     `json:"channels"`
	Status     json.RawMessage `json:"status,omitempty"`
}

func main() {
	host := flag.String("host", "localhost:8080", "Server address")
	points := flag.Int("points", 100, "Samples per window update")
	count := flag.Int("n", 50, "Messages to read before exiting, 0 for no limit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Error("dial failed", slog.String("url", u.String()), slog.Any("error", err))
		os.Exit(1)
	}
	defer c.Close()

	if err := c.WriteJSON(map[string]interface{}{"points": *points}); err != nil {
		logger.Error("send view length", slog.Any("error", err))
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.Close()
	}()

	for i := 0; *count == 0 || i < *count; i++ {
		var msg message
		if err := c.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "window":
			attrs := []any{slog.String("run_id", msg.RunID), slog.Int("samples", len(msg.Timestamps))}
			if n := len(msg.Timestamps); n > 0 {
				attrs = append(attrs, slog.Int64("last_ms", msg.Timestamps[n-1]))
				for ch, series := range msg.Channels {
					if len(series) == n {
						attrs = append(attrs, slog.Float64("ch"+strconv.Itoa(ch+1), series[n-1]))
					}
				}
			}
			logger.Info("window", attrs...)
		default:
			logger.Info(msg.Type, slog.String("status", string(msg.Status)))
		}
	}
}
