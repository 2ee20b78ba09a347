// Package main implements rudpctl, an interactive shell for driving a
// pkg/rudp Multiplexer by hand: bind a UDP socket, connect or accept
// sockets against a peer, push bytes through them, and watch the
// dispatcher's live connection table.
package main

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rudp/pkg/rudp"
	"rudp/pkg/transport"
)

// CLI banner.
const banner = `
  ____        _             _   _
 |  _ \ _   _| |_ __  ___  | |_| |
 | |_) | | | | | '_ \/ __| | __| |
 |  _ <| |_| | | |_) \__ \ | |_| |
 |_| \_\\__,_|_| .__/|___/  \__|_|
               |_|
    rudp connection shell (v1.0)
    ---------------------------

`

// socketEntry tracks one CLI-created socket alongside bookkeeping that
// pkg/rudp itself doesn't surface (when it was opened, and under which
// role, so 'ls' can render a table without reaching back into the
// Session internals).
type socketEntry struct {
	socket    *rudp.Socket
	role      rudp.Role
	createdAt time.Time
}

// Global state. Exactly one Multiplexer is bound per rudpctl process; the
// sockets map is the CLI's own id->entry registry, separate from (and
// only ever a subset of) the dispatcher's internal routing table.
var (
	mux     *rudp.Multiplexer
	udpConn *transport.UDPMultiplexer
	sockets = map[rudp.ConnectionID]*socketEntry{}
	cfg     = rudp.DefaultConfig()
)

// requireMux returns an error if no Multiplexer has been bound yet.
func requireMux() error {
	if mux == nil {
		return fmt.Errorf("no multiplexer bound yet; run 'bind <local-addr>' first")
	}
	return nil
}

// lookupSocket resolves a connection id typed at the prompt (decimal,
// matching what 'ls' prints) to a tracked entry.
func lookupSocket(rawID uint32) (*socketEntry, error) {
	id := rudp.ConnectionID(rawID)
	entry, ok := sockets[id]
	if !ok {
		return nil, fmt.Errorf("no socket tracked under id %d", id)
	}
	return entry, nil
}

func parseEndpoint(s string) (rudp.Endpoint, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return rudp.Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	return addr, nil
}

// waitResult blocks on done for at most cfg.HandshakeTimeout, closing sock
// and returning its own timeout error if nothing arrives in time. This is
// the CLI's own external timer — pkg/rudp never arms one internally for
// pending I/O, per the design.
func waitResult(done <-chan rudp.Result, sock *rudp.Socket, timeout time.Duration) (rudp.Result, error) {
	select {
	case res := <-done:
		return res, nil
	case <-time.After(timeout):
		_ = sock.Close()
		return rudp.Result{}, fmt.Errorf("timed out after %s", timeout)
	}
}

// renderSocketTable formats the socket registry into a human-readable
// table, grounded on the teacher's container-info table rendering.
func renderSocketTable() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Role", "Remote endpoint", "Remote ID", "Connected", "Age"})

	ids := make([]rudp.ConnectionID, 0, len(sockets))
	for id := range sockets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		e := sockets[id]
		remote := e.socket.RemoteEndpoint()
		remoteStr := "-"
		if remote != (rudp.Endpoint{}) {
			remoteStr = remote.String()
		}
		remoteID := "-"
		if rid := e.socket.RemoteID(); rid != 0 {
			remoteID = fmt.Sprintf("%d", rid)
		}
		t.AppendRow(table.Row{
			uint32(id),
			e.role.String(),
			remoteStr,
			remoteID,
			e.socket.IsConnected(),
			time.Since(e.createdAt).Round(time.Second).String(),
		})
	}
	return t.Render()
}

func addCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name: "bind",
		Help: "bind a UDP socket and start the multiplexer event loop",
		Args: func(a *grumble.Args) {
			a.String("local-addr", "local UDP address to bind, e.g. 127.0.0.1:9000")
		},
		Run: func(c *grumble.Context) error {
			if mux != nil {
				return fmt.Errorf("a multiplexer is already bound; restart rudpctl to rebind")
			}
			laddr, err := net.ResolveUDPAddr("udp", c.Args.String("local-addr"))
			if err != nil {
				return fmt.Errorf("resolving local address: %w", err)
			}
			conn, err := net.ListenUDP("udp", laddr)
			if err != nil {
				return fmt.Errorf("binding UDP socket: %w", err)
			}
			udpConn = transport.NewUDPMultiplexer(conn, 0)
			mux = rudp.NewMultiplexer(udpConn)
			udpConn.Bind(mux)
			log.Info().Str("local_addr", conn.LocalAddr().String()).Msg("rudpctl: bound")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "connect",
		Aliases: []string{"dial"},
		Help:    "open a connection as the initiator",
		Args: func(a *grumble.Args) {
			a.String("remote-addr", "remote UDP endpoint, e.g. 10.0.0.5:9000")
		},
		Run: func(c *grumble.Context) error {
			if err := requireMux(); err != nil {
				return err
			}
			remote, err := parseEndpoint(c.Args.String("remote-addr"))
			if err != nil {
				return err
			}
			sock, err := rudp.NewSocket(mux, cfg)
			if err != nil {
				log.Error().Err(err).Msg("rudpctl: could not allocate a connection id")
				return nil
			}
			sockets[sock.ID()] = &socketEntry{socket: sock, role: rudp.RoleInitiator, createdAt: time.Now()}

			res, err := waitResult(sock.StartConnect(remote), sock, cfg.HandshakeTimeout)
			if err != nil {
				log.Error().Err(err).Uint32("id", uint32(sock.ID())).Msg("rudpctl: connect failed")
				return nil
			}
			if res.Err != nil {
				log.Error().Err(res.Err).Uint32("id", uint32(sock.ID())).Msg("rudpctl: connect aborted")
				return nil
			}
			log.Info().
				Uint32("id", uint32(sock.ID())).
				Uint32("remote_id", uint32(sock.RemoteID())).
				Msg("rudpctl: connected")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "accept",
		Help: "open a connection as the responder; the peer's endpoint and local id must be known in advance",
		Args: func(a *grumble.Args) {
			a.String("remote-addr", "remote UDP endpoint the initiator will handshake from")
			a.Int("peer-id", "the initiator's local connection id, as printed by its own 'ls'")
		},
		Run: func(c *grumble.Context) error {
			if err := requireMux(); err != nil {
				return err
			}
			remote, err := parseEndpoint(c.Args.String("remote-addr"))
			if err != nil {
				return err
			}
			peerID := c.Args.Int("peer-id")
			if peerID <= 0 {
				return fmt.Errorf("peer-id must be a positive connection id")
			}
			sock, err := rudp.NewSocket(mux, cfg)
			if err != nil {
				log.Error().Err(err).Msg("rudpctl: could not allocate a connection id")
				return nil
			}
			sock.Peer().SetEndpoint(remote)
			sock.Peer().SetID(rudp.ConnectionID(peerID))
			sockets[sock.ID()] = &socketEntry{socket: sock, role: rudp.RoleResponder, createdAt: time.Now()}

			res, err := waitResult(sock.StartAccept(), sock, cfg.HandshakeTimeout)
			if err != nil {
				log.Error().Err(err).Uint32("id", uint32(sock.ID())).Msg("rudpctl: accept failed")
				return nil
			}
			if res.Err != nil {
				log.Error().Err(res.Err).Uint32("id", uint32(sock.ID())).Msg("rudpctl: accept aborted")
				return nil
			}
			log.Info().
				Uint32("id", uint32(sock.ID())).
				Uint32("remote_id", uint32(sock.RemoteID())).
				Msg("rudpctl: connected")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "write",
		Help: "write text to a connected socket",
		Args: func(a *grumble.Args) {
			a.Int("id", "connection id, as printed by 'ls'")
			a.String("text", "text to send")
		},
		Run: func(c *grumble.Context) error {
			entry, err := lookupSocket(uint32(c.Args.Int("id")))
			if err != nil {
				return err
			}
			res := <-entry.socket.StartWrite([]byte(c.Args.String("text")))
			if res.Err != nil {
				log.Error().Err(res.Err).Msg("rudpctl: write aborted")
				return nil
			}
			log.Info().Int("bytes", res.BytesTransferred).Msg("rudpctl: write complete")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "read",
		Help: "read up to n bytes from a connected socket, blocking until at least min bytes arrive",
		Args: func(a *grumble.Args) {
			a.Int("id", "connection id, as printed by 'ls'")
			a.Int("n", "maximum number of bytes to read")
		},
		Flags: func(f *grumble.Flags) {
			f.Int("m", "min", 1, "minimum number of bytes to wait for")
		},
		Run: func(c *grumble.Context) error {
			entry, err := lookupSocket(uint32(c.Args.Int("id")))
			if err != nil {
				return err
			}
			n := c.Args.Int("n")
			min := c.Flags.Int("min")
			buf := make([]byte, n)
			res := <-entry.socket.StartRead(buf, min)
			if res.Err != nil {
				log.Error().Err(res.Err).Msg("rudpctl: read aborted")
				return nil
			}
			log.Info().Int("bytes", res.BytesTransferred).Str("data", string(buf[:res.BytesTransferred])).
				Msg("rudpctl: read complete")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "close",
		Help: "close a tracked socket",
		Args: func(a *grumble.Args) {
			a.Int("id", "connection id, as printed by 'ls'")
		},
		Run: func(c *grumble.Context) error {
			id := rudp.ConnectionID(c.Args.Int("id"))
			entry, ok := sockets[id]
			if !ok {
				return fmt.Errorf("no socket tracked under id %d", id)
			}
			_ = entry.socket.Close()
			delete(sockets, id)
			log.Info().Uint32("id", uint32(id)).Msg("rudpctl: closed")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Help:    "list tracked sockets and their connection state",
		Run: func(c *grumble.Context) error {
			if len(sockets) == 0 {
				log.Info().Msg("no sockets tracked yet")
				return nil
			}
			c.App.Println(renderSocketTable())
			return nil
		},
	})
}

func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".rudpctl"
	} else {
		histFile = filepath.Join(home, ".rudpctl")
	}

	app := grumble.New(&grumble.Config{
		Name:        "rudpctl",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.Duration("t", "handshake-timeout", rudp.DefaultHandshakeTimeout, "deadline for connect/accept to reach Connected")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		cfg.HandshakeTimeout = flags.Duration("handshake-timeout")
		return nil
	})

	return app
}

func main() {
	configureLogging()

	app := setupCLI()
	addCommands(app)

	defer func() {
		if udpConn != nil {
			_ = udpConn.Close()
		}
		if mux != nil {
			mux.Shutdown()
		}
	}()

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}
