package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Zereker/particle"
)

// echoServer is what the TCP and UDP servers have in common here.
type echoServer interface {
	Serve(ctx context.Context) error
	Send(id uuid.UUID, msg string) error
	Len() int
	Addr() net.Addr
}

// echoHandler sends every message back to the connection it came from.
func echoHandler(log logrus.FieldLogger, srv *echoServer) particle.ServerHandlerFuncs[string] {
	return particle.ServerHandlerFuncs[string]{
		ServerStart: func(addr net.Addr) error {
			log.WithField("addr", addr).Info("echo server listening")
			return nil
		},
		Connect: func(id uuid.UUID, peer particle.Peer) error {
			log.WithFields(logrus.Fields{"id": id, "remote": peer.RemoteHost()}).Info("client connected")
			return nil
		},
		Message: func(id uuid.UUID, msg string) error {
			return (*srv).Send(id, msg)
		},
		ConnectionEnd: func(id uuid.UUID, peer particle.Peer) error {
			log.WithFields(logrus.Fields{"id": id, "remote": peer.RemoteHost()}).Info("client gone")
			return nil
		},
		ServerStop: func() error {
			log.Info("echo server stopped")
			return nil
		},
	}
}

// statsTask logs the connection count of srv.
func statsTask(cfg *Config, log logrus.FieldLogger, srv *echoServer) []particle.Option {
	if cfg.StatsInterval <= 0 {
		return nil
	}
	task := particle.NewTask("stats", cfg.StatsInterval, cfg.StatsInterval, func(context.Context) error {
		log.WithField("connections", (*srv).Len()).Info("stats")
		return nil
	})
	return []particle.Option{particle.TasksOption(task)}
}

func serveEcho(cfg *Config, log logrus.FieldLogger, udp bool) error {
	var srv echoServer
	handler := echoHandler(log, &srv)
	opts := append(cfg.options(particle.NewLogrusLogger(log)), statsTask(cfg, log, &srv)...)

	var err error
	if udp {
		srv, err = particle.NewUDPServer[string, string](cfg.Address, particle.StringTranslator{}, handler, opts...)
	} else {
		srv, err = particle.NewTCPServer[string, string](cfg.Address, particle.StringTranslator{}, handler, opts...)
	}
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	err = srv.Serve(signalContext(log))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runEchoClient sends each line read from in and prints the replies.
func runEchoClient(cfg *Config, log logrus.FieldLogger, udp bool, in io.Reader, out io.Writer) error {
	host, err := particle.ParseHost(cfg.Address)
	if err != nil {
		return err
	}

	ready := make(chan struct{})
	handler := particle.ClientHandlerFuncs[string, string]{
		Connect: func(particle.Client[string, string]) error {
			close(ready)
			return nil
		},
		Message: func(_ particle.Client[string, string], msg string) error {
			_, err := fmt.Fprintln(out, msg)
			return err
		},
		Disconnect: func(particle.Client[string, string]) error {
			log.Info("disconnected")
			return nil
		},
	}

	var client particle.Client[string, string]
	opts := cfg.options(particle.NewLogrusLogger(log))
	if udp {
		client, err = particle.NewUDPClient[string, string](host, particle.StringTranslator{}, handler, opts...)
	} else {
		client, err = particle.NewTCPClient[string, string](host, particle.StringTranslator{}, handler, opts...)
	}
	if err != nil {
		return errors.Wrap(err, "create client")
	}

	ctx := signalContext(log)
	done := make(chan error, 1)
	go func() { done <- client.Connect(ctx) }()

	select {
	case <-ready:
	case err = <-done:
		return err
	}

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if err := client.Send(scanner.Text()); err != nil {
				log.WithError(err).Warn("send failed")
				break
			}
		}
		_ = client.Disconnect()
	}()

	err = <-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(log logrus.FieldLogger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()
	return ctx
}
