package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/WendelHime/peerwire/internal/config"
	"github.com/WendelHime/peerwire/internal/decoder"
	"github.com/WendelHime/peerwire/internal/logging"
	"github.com/WendelHime/peerwire/internal/logic"
	"github.com/WendelHime/peerwire/internal/p2p"
	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
	"github.com/WendelHime/peerwire/internal/tracker"
)

const defaultPort = 6881

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	torrentFlag = cli.StringFlag{
		Name:  "torrent",
		Usage: "Specify the input torrent file",
	}
	peerFlag = cli.StringFlag{
		Name:  "peer",
		Usage: "Peer to connect to as IP:PORT. Asks the tracker when empty",
	}
	addrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "Address to accept peers on",
		Value: fmt.Sprintf("0.0.0.0:%d", defaultPort),
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "peerwire"
	app.Usage = "speak the BitTorrent peer wire protocol"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "connect",
			Usage:  "connect to one peer and track which pieces it has",
			Flags:  []cli.Flag{torrentFlag, peerFlag, configFlag},
			Action: connectAction,
		},
		{
			Name:   "listen",
			Usage:  "accept peers and answer their handshakes",
			Flags:  []cli.Flag{torrentFlag, addrFlag, configFlag},
			Action: listenAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every command needs before it touches the network.
type env struct {
	cfg      config.Config
	log      *slog.Logger
	meta     models.Metafile
	session  protocol.Context
	closeLog func() error
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	path := c.String(torrentFlag.Name)
	if path == "" {
		_ = closeLog()
		return nil, errors.New("--torrent is required")
	}
	f, err := os.Open(path)
	if err != nil {
		_ = closeLog()
		return nil, errors.Wrap(err, "open torrent")
	}
	defer f.Close()

	meta, err := decoder.NewDecoder().Decode(f)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	logger.Info("torrent loaded",
		slog.String("name", meta.Info.Name),
		slog.String("info_hash", meta.InfoHash.String()),
		slog.Int("pieces", meta.PieceCount()),
		slog.String("peer_id", cfg.Peer.ID.String()))

	return &env{
		cfg:  cfg,
		log:  logger,
		meta: meta,
		session: protocol.Context{
			InfoHash:   meta.InfoHash,
			PeerID:     cfg.Peer.ID,
			PieceCount: meta.PieceCount(),
		},
		closeLog: closeLog,
	}, nil
}

func connectAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := pickPeer(ctx, e, c.String(peerFlag.Name))
	if err != nil {
		return err
	}
	e.log.Info("connecting", slog.String("peer", addr.String()))
	conn, err := p2p.Dial(ctx, addr, e.session, e.cfg.P2P(), e.log)
	if err != nil {
		e.log.Error("failed to connect", slog.Any("error", err))
		return err
	}

	session := logic.NewSession(conn, logic.SessionConfig{
		PieceCount: e.meta.PieceCount(),
		Idle:       e.cfg.Multiplexer.Interval,
		Progress:   os.Stderr,
	}, e.log)
	if err := session.Run(ctx); err != nil {
		e.log.Error("peer session failed", slog.Any("error", err))
		return err
	}
	return nil
}

func pickPeer(ctx context.Context, e *env, peer string) (models.Addr, error) {
	if peer != "" {
		return models.ParseAddr(peer)
	}
	t := tracker.NewTracker(e.meta.Announce, tracker.Announce{PeerID: e.cfg.Peer.ID, Port: defaultPort})
	peers, err := t.GetPeers(ctx, e.meta)
	if err != nil {
		e.log.Error("failed to retrieve peers", slog.Any("error", err))
		return models.Addr{}, err
	}
	if len(peers) == 0 {
		return models.Addr{}, errors.New("no peers found")
	}
	e.log.Info("peers retrieved", slog.Int("count", len(peers)))
	return peers[0].Addr, nil
}

func listenAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", c.String(addrFlag.Name))
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	responder := logic.NewResponder(e.meta.PieceCount(), e.log)
	mux := p2p.NewMultiplexer(e.cfg.P2P(), responder.Handler(), e.log)
	done := make(chan error, 1)
	go func() { done <- mux.Run(ctx) }()

	serveErr := p2p.Serve(ctx, ln, mux, e.session)
	stop()
	if err := <-done; err != nil {
		return err
	}
	e.log.Info("stopped", slog.Int64("answered", responder.Answered()))
	return serveErr
}
