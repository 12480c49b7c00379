package hostlink

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// ServeOne accepts a single engine connection on ln and runs handle on it.
// Further connections are refused while it runs.
func ServeOne(ctx context.Context, ln net.Listener, handle func(context.Context, *websocket.Conn) error) error {
	connCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	httpServer := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
				InsecureSkipVerify: true,
			})
			if err != nil {
				log.Printf("accept error: %v", err)
				return
			}
			select {
			case connCh <- conn:
			default:
				conn.Close(websocket.StatusPolicyViolation, "only one engine allowed")
			}
		}),
	}

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer httpServer.Close()

	var conn *websocket.Conn
	select {
	case conn = <-connCh:
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := handle(ctx, conn); err != nil {
		conn.Close(websocket.StatusInternalError, truncate(err.Error()))
		return err
	}
	release(conn)
	return nil
}

// closeGrace bounds how long a finished engine has to close its end.
const closeGrace = time.Second

// release waits for the engine to close the connection after session_done,
// then drops it without the full close handshake.
func release(conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	conn.CloseNow()
}

// truncate keeps a close reason within the 123 bytes a close frame allows.
func truncate(reason string) string {
	if len(reason) > 120 {
		return reason[:120]
	}
	return reason
}
