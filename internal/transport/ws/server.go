// Package ws carries host requests over websockets: every text frame is one
// request and gets exactly one reply.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bonfire.gg/internal/protocol"
)

type Handler interface {
	Do(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

type Server struct {
	h   Handler
	log *log.Logger

	// RequestTimeout bounds how long one request may wait for the engine.
	RequestTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(h Handler, logger *log.Logger) *Server {
	return &Server{
		h:              h,
		log:            logger,
		RequestTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 64)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if typ != websocket.TextMessage {
				continue
			}
			resp := s.serve(ctx, msg)
			b, err := json.Marshal(resp)
			if err != nil {
				s.logf("marshal reply %s: %v", resp.ReqID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) serve(ctx context.Context, msg []byte) protocol.Response {
	req, err := protocol.DecodeRequest(msg)
	if err != nil {
		return protocol.Fail(protocol.Request{ReqID: peekReqID(msg)}, protocol.ErrProtoBadRequest, err.Error())
	}
	rctx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
	defer cancel()
	resp, err := s.h.Do(rctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.Fail(req, protocol.ErrBusy, "server busy, try again")
		}
		s.logf("%s %s: %v", req.Type, req.ReqID, err)
		return protocol.Fail(req, protocol.ErrInternal, err.Error())
	}
	return resp
}

// peekReqID recovers req_id from a request that failed validation so the
// reply can still be matched.
func peekReqID(msg []byte) string {
	var base struct {
		ReqID any `json:"req_id"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		return ""
	}
	id, _ := base.ReqID.(string)
	return id
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
