// Echo runs a framed TCP server that confirms every message and keeps a
// registry of live connections, logging how many requests each one served.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ivnisc/csat"
)

type registry struct {
	ack csat.Dispatcher

	sync.Mutex
	served map[string]int
}

func newRegistry() *registry {
	return &registry{
		ack:    csat.NewAckDispatcher(slog.Default()),
		served: make(map[string]int),
	}
}

func (r *registry) Handle(conn *net.TCPConn) {
	var c *csat.Conn

	count := csat.DispatcherFunc(func(ctx context.Context, peer net.Addr, payload []byte) ([]byte, error) {
		r.Lock()
		r.served[c.ID()]++
		r.Unlock()
		return r.ack.Dispatch(ctx, peer, payload)
	})

	c, err := csat.NewConn(conn,
		csat.DispatcherOption(count),
		csat.OnErrorOption(func(err error) csat.ErrorAction {
			slog.Error("dispatch failed", "error", err)
			return csat.Continue
		}),
	)
	if err != nil {
		slog.Error("rejecting connection", "error", err)
		conn.Close()
		return
	}

	r.add(c)
	defer r.remove(c)

	if err = c.Run(context.Background()); err != nil {
		slog.Warn("connection ended", "conn_id", c.ID(), "error", err)
	}
}

func (r *registry) add(c *csat.Conn) {
	r.Lock()
	defer r.Unlock()

	r.served[c.ID()] = 0
	slog.Info("add conn", "conn_id", c.ID(), "addr", c.Addr(), "live", len(r.served))
}

func (r *registry) remove(c *csat.Conn) {
	r.Lock()
	defer r.Unlock()

	slog.Info("remove conn", "conn_id", c.ID(), "served", r.served[c.ID()])
	delete(r.served, c.ID())
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:54321")
	if err != nil {
		panic(err)
	}

	server, err := csat.New(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, newRegistry()); err != nil && err != context.Canceled {
		slog.Error("server error", "error", err)
	}
}
