package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	unreliablertc "github.com/lanikai/unreliablertc"
	"github.com/lanikai/unreliablertc/internal/logging"
	"github.com/lanikai/unreliablertc/internal/signaling"
)

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}

	if flagVersion {
		version()
		os.Exit(0)
	}

	if flagLogLevel != "" {
		if level, err := logging.ParseLevel(flagLogLevel); err == nil {
			logging.DefaultLogger.Level = level
		} else {
			logging.DefaultLogger.Warn("ignoring --log-level=%s: %v", flagLogLevel, err)
		}
	}
	log := logging.DefaultLogger.WithTag("unreliablertcd")

	listenAddr, err := net.ResolveUDPAddr("udp", flagListenAddress)
	if err != nil {
		log.Error("resolve --listen=%s: %v", flagListenAddress, err)
		os.Exit(1)
	}

	publicAddress := flagPublicAddress
	if publicAddress == "" {
		publicAddress = flagListenAddress
	}
	publicAddr, err := net.ResolveUDPAddr("udp", publicAddress)
	if err != nil {
		log.Error("resolve --public=%s: %v", publicAddress, err)
		os.Exit(1)
	}

	config := unreliablertc.NewConfig(listenAddr, publicAddr, unreliablertc.WithEventFunc(
		func(code unreliablertc.EventCode, message string) {
			log.Info("event %d: %s", code, message)
		},
	))

	server, err := unreliablertc.New(config)
	if err != nil {
		log.Error("start server: %v", err)
		os.Exit(1)
	}
	defer server.Shutdown()

	offers := signaling.NewLocalEndpoint(server.SessionEndpoint(), flagHTTPAddress)
	go func() {
		if err := offers.ListenAndServe(); err != nil {
			log.Error("offer endpoint: %v", err)
		}
	}()

	log.Info("listening on %s (public %s), offer endpoint on %s", listenAddr, publicAddr, flagHTTPAddress)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go echoLoop(server, log)

	<-sig
	log.Info("shutting down")
	offers.Shutdown()
	server.Shutdown()
}

// echoLoop is the daemon's default application behavior: echo every
// received datagram back to its sender, so unreliablertcd is directly
// useful for manual testing against a browser client without extra
// plumbing. A real deployment embeds the Server and implements its own
// Recv/Send loop instead of running this binary.
func echoLoop(server *unreliablertc.Server, log *logging.Logger) {
	for {
		result, err := server.Recv()
		if err != nil {
			return
		}
		if err := server.Send(result.Data, result.Type, result.RemoteAddr.(*net.UDPAddr)); err != nil {
			log.Warn("echo to %s: %v", result.RemoteAddr, err)
		}
	}
}
