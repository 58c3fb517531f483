package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/rbright/stories/internal/broadcast"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// PushRegistry tracks surface sinks for state pushes. The broadcaster
// satisfies it.
type PushRegistry interface {
	Attach(surfaceID string, sink broadcast.Sink)
	Detach(surfaceID string)
}

// Serve accepts unix-socket clients until context cancellation or
// listener close. A "subscribe" request turns its connection into a
// long-lived push stream of JSON lines; every other request is a
// single command/response roundtrip.
func Serve(ctx context.Context, listener net.Listener, handler Handler, pushes PushRegistry) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()

			reader := bufio.NewReader(c)
			line, err := reader.ReadBytes('\n')
			if err != nil {
				_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
				return
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
				return
			}

			if req.Command == "subscribe" {
				if pushes == nil {
					_ = json.NewEncoder(c).Encode(Response{OK: false, Error: "push subscriptions not available"})
					return
				}
				serveSubscription(ctx, c, req, pushes)
				return
			}

			resp := handler.Handle(ctx, req)
			_ = json.NewEncoder(c).Encode(resp)
		}(conn)
	}
}

// serveSubscription streams state pushes to one surface until the
// client hangs up or the server shuts down.
func serveSubscription(ctx context.Context, conn net.Conn, req Request, pushes PushRegistry) {
	surfaceID := req.Surface
	if surfaceID == "" {
		surfaceID = uuid.NewString()
	}

	sink := make(broadcast.ChanSink, 16)
	pushes.Attach(surfaceID, sink)
	defer pushes.Detach(surfaceID)

	// A subscriber never writes again; a read unblocking means hangup.
	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		close(gone)
	}()

	enc := json.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case msg := <-sink:
			if err := enc.Encode(msg); err != nil {
				return
			}
		}
	}
}
