// Command raftd runs one node of a raftcore cluster, grounded on the
// teacher's cmd/raft/single-server demo: flag-parsed identity/address,
// bbolt-backed data directory, graceful shutdown on SIGINT/SIGTERM. Where
// the teacher's demo joined a running cluster with a one-off gRPC call
// before starting its election timer, this one goes through role.Join by
// passing -seeds, letting the consensus loop itself drive the handshake.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/obreshkov/raftcore/internal/raft"
	"github.com/obreshkov/raftcore/internal/raft/logging"
	"github.com/obreshkov/raftcore/internal/raft/server"
	"github.com/obreshkov/raftcore/internal/raft/statemachine"
	"github.com/obreshkov/raftcore/internal/raft/transport"
)

func main() {
	id := flag.String("id", "", "server id (required)")
	host := flag.String("host", "127.0.0.1", "host to bind and advertise")
	port := flag.Int("port", 50051, "port to bind and advertise")
	dataDir := flag.String("data", "./data", "directory for the log and metadata store")
	bootstrap := flag.Bool("bootstrap", false, "start as the sole member of a brand new cluster")
	seeds := flag.String("seeds", "", "comma-separated id@host:port list of members to join through, ignored with -bootstrap")
	flag.Parse()

	logger := logging.NewLogrus(logrus.InfoLevel, logrus.Fields{"server": *id})

	if *id == "" {
		logger.Errorf("raftd: -id is required")
		os.Exit(1)
	}

	seedMembers, err := parseSeeds(*seeds)
	if err != nil {
		logger.Errorf("raftd: %v", err)
		os.Exit(1)
	}
	if !*bootstrap && len(seedMembers) == 0 {
		logger.Errorf("raftd: either -bootstrap or -seeds must be given")
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		ID:           raft.ServerID(*id),
		Host:         *host,
		Port:         *port,
		DataDir:      *dataDir,
		Bootstrap:    *bootstrap,
		Seeds:        seedMembers,
		StateMachine: statemachine.NewKVStateMachine(),
		Transport:    transport.NewGRPCTransport(),
		Logger:       logger,
	})
	if err != nil {
		logger.Errorf("raftd: build server: %v", err)
		os.Exit(1)
	}

	if err := srv.Open(); err != nil {
		logger.Errorf("raftd: open server: %v", err)
		os.Exit(1)
	}
	logger.Infof("raftd: %s listening on %s:%d (bootstrap=%v, seeds=%d)", *id, *host, *port, *bootstrap, len(seedMembers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Infof("raftd: shutting down")
	if err := srv.Close(); err != nil {
		logger.Errorf("raftd: close server: %v", err)
		os.Exit(1)
	}
}

// parseSeeds parses a comma-separated "id@host:port" list into raft.Member
// values with Type raft.MemberActive, the shape server.Config.Seeds and
// role.Join expect.
func parseSeeds(raw string) ([]raft.Member, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var members []raft.Member
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idAndAddr := strings.SplitN(part, "@", 2)
		if len(idAndAddr) != 2 {
			return nil, fmt.Errorf("parse seed %q: want id@host:port", part)
		}
		hostPort := strings.SplitN(idAndAddr[1], ":", 2)
		if len(hostPort) != 2 {
			return nil, fmt.Errorf("parse seed %q: want id@host:port", part)
		}
		p, err := strconv.Atoi(hostPort[1])
		if err != nil {
			return nil, fmt.Errorf("parse seed %q: bad port: %w", part, err)
		}
		members = append(members, raft.Member{
			ID:     raft.ServerID(idAndAddr[0]),
			Host:   hostPort[0],
			Port:   p,
			Type:   raft.MemberActive,
			Status: raft.MemberAlive,
		})
	}
	return members, nil
}
