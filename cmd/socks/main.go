// Command socks is the encrypting SOCKS-style proxy described in spec.md:
// a single ini-configured binary running in one of three modes (plain
// SOCKS5, encrypting "local" tunnel front end, decrypting "remote" tunnel
// back end), built on the reactor pool and proxy state machine.
package main

import (
	"fmt"
	"os"

	"github.com/holystardb/cos-sub003/internal/cipher"
	"github.com/holystardb/cos-sub003/internal/config"
	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/holystardb/cos-sub003/internal/proxy"
	"github.com/holystardb/cos-sub003/internal/reactor"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "socks",
		Short:         "Encrypting SOCKS-style TCP proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to the ini configuration file")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	c, err := cipher.New(cfg.EncryptType, cipher.AuthTag(cfg.Username, cfg.Password))
	if err != nil {
		return err
	}

	settings := proxy.Settings{
		Mode:           cfg.Mode,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Cipher:         c,
		ConnectTimeout: secondsToTicks(cfg.ConnectTimeout),
		PollTimeout:    secondsToTicks(cfg.PollTimeout),
		BufSize:        cfg.SocketBufSize,
		RemoteHost:     cfg.RemoteHost,
		RemotePort:     cfg.RemotePort,
		Socket:         reactor.DefaultSocketConfig(),
	}
	settings.Socket.BufSize = cfg.SocketBufSize

	pool := proxy.NewPool(1024, cfg.SocketBufSize)
	machine := proxy.NewMachine(settings, pool, log)

	reactorPool, err := reactor.NewPool(cfg.ThreadCount, 4096, machine.Dispatch)
	if err != nil {
		return err
	}
	defer reactorPool.Close()

	listenFD, err := proxy.ListenSocket(cfg.BindAddress, cfg.Port, 1024)
	if err != nil {
		return err
	}

	acceptor, err := reactorPool.StartAcceptor(settings.Socket, machine.OnAccept, listenFD)
	if err != nil {
		return err
	}

	reactorPool.ReactorStartPoll()
	go acceptor.Run()

	log.Info().
		Int("port", int(cfg.Port)).
		Int("mode", int(cfg.Mode)).
		Log("socks: listening")

	select {}
}

// secondsToTicks converts the ini file's seconds-denominated timeouts into
// the 100ms wheel ticks every reactor timeout expects (spec.md §3).
func secondsToTicks(seconds int) uint32 {
	return uint32(seconds) * 10
}
