package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"cross/service"
	"cross/users"
)

// Server accepts client connections and runs one handler goroutine per
// connection, bounded by maxConns. Requests on one connection are strictly
// sequential; concurrency across connections is what exercises the
// engine's lock.
type Server struct {
	orders   *service.OrderService
	sessions *users.Manager
	history  HistorySource
	maxConns int
	log      *zap.Logger

	mu  sync.Mutex
	lis net.Listener
	wg  sync.WaitGroup
}

func NewServer(orders *service.OrderService, sessions *users.Manager, history HistorySource, maxConns int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		orders:   orders,
		sessions: sessions,
		history:  history,
		maxConns: maxConns,
		log:      log,
	}
}

// Serve blocks accepting connections until ctx is cancelled or the
// listener fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	s.log.Info("tcp server listening", zap.String("addr", addr))

	sem := make(chan struct{}, s.maxConns)
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() {
				<-sem
				s.wg.Done()
			}()
			h := &connHandler{
				conn:     conn,
				orders:   s.orders,
				sessions: s.sessions,
				history:  s.history,
				log:      s.log,
			}
			h.run()
		}()
	}

	s.wg.Wait()
	return nil
}
