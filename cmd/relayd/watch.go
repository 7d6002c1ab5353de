package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/tgrelay/internal/notify"
)

func newWatchCommand() *cobra.Command {
	var addr, token string
	var rooms []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream relay events from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := watchURL(addr, token, rooms)
			if err != nil {
				return err
			}
			return watch(cmd, u)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:5001/ws", "WebSocket server address")
	cmd.Flags().StringVar(&token, "token", os.Getenv("DASHBOARD_PASSWORD"), "Dashboard password")
	cmd.Flags().StringSliceVar(&rooms, "room", []string{notify.DashboardRoom}, "Rooms to join")
	return cmd
}

func watchURL(addr, token string, rooms []string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address: %w", err)
	}
	q := u.Query()
	for _, r := range rooms {
		q.Add("room", r)
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func watch(cmd *cobra.Command, addr string) error {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Connected. Press Ctrl+C to stop.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fmt.Fprintf(cmd.ErrOrStderr(), "read error: %v\n", err)
				}
				return
			}

			var env notify.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "unmarshal error: %v\n", err)
				continue
			}
			ts := time.UnixMilli(env.Ts).Format(time.TimeOnly)
			if env.Payload == nil {
				fmt.Fprintf(out, "%s %s %s\n", ts, env.Type, env.Room)
				continue
			}
			payload, _ := json.Marshal(env.Payload)
			fmt.Fprintf(out, "%s %s %s %s\n", ts, env.Type, env.Room, payload)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case <-done:
		return nil
	case <-interrupt:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}
