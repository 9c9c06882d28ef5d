package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tarun-kavipurapu/p2p-send/peer"
	"tarun-kavipurapu/p2p-send/pkg/logger"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport/multicast"
	"tarun-kavipurapu/p2p-send/pkg/workerpool"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

var (
	cfg            = peer.DefaultConfig()
	fileHash       string
	pieceHash      string
	subscribeTo    []string
	runInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the group and start publishing / subscribing",
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg.FileHash, err = protocol.ParseHashKind(fileHash); err != nil {
			return err
		}
		if cfg.PieceHash, err = protocol.ParseHashKind(pieceHash); err != nil {
			return err
		}
		cfg.OnText = func(topic, text string) {
			fmt.Printf("\n[%s] %s\n", topic, text)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		pool := workerpool.New(cfg.Workers, nil)
		defer pool.Close()

		conn, err := multicast.Listen(multicast.Options{
			Group:     cfg.GroupAddress(),
			Port:      cfg.Port,
			Interface: cfg.Interface,
			Loopback:  true,
		})
		if err != nil {
			return err
		}

		ctrl, err := peer.NewController(cfg, pool, conn, conn.Group())
		if err != nil {
			conn.Close()
			return err
		}
		defer func() {
			if err := ctrl.Close(); err != nil {
				logger.Sugar.Warnf("Shutdown: %v", err)
			}
		}()
		logger.Sugar.Infof("Joined %s on %v, downloads go to %s", cfg.GroupHostPort(), conn.Interfaces(), cfg.DownloadPath)

		for _, topic := range subscribeTo {
			if _, err := ctrl.Subscribe(topic); err != nil {
				return err
			}
		}

		if !runInteractive {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		}

		fmt.Println("p2p-send interactive shell")
		fmt.Println("Type 'help' for commands.")
		sh := &shell{ctrl: ctrl, opts: cfg.ContentOptions(), out: os.Stdout}
		sh.exit = func() {
			fmt.Println("Stopping...")
			ctrl.Close()
			pool.Close()
			logger.Sync()
			os.Exit(0)
		}
		prompt.New(
			sh.execute, // 执行一行用户输入
			completer,  // 命令自动补全的集合
			prompt.OptionPrefix("p2p> "),
			prompt.OptionTitle("p2p-send"),
		).Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVarP(&cfg.Group, "group", "g", "", "Multicast group (default 224.0.0.3, or ff12:: with --ipv6)")
	f.BoolVarP(&cfg.IPv6, "ipv6", "6", false, "Use the IPv6 default group")
	f.IntVarP(&cfg.Port, "port", "p", protocol.DefaultPort, "Multicast port")
	f.StringVar(&cfg.Interface, "iface", "", "Network interface to join the group on")
	f.StringVarP(&cfg.DownloadPath, "dir", "d", ".", "Directory received files are written to")
	f.IntVar(&cfg.PieceSize, "piece-size", protocol.DefaultPieceSize, "Piece size in bytes for published content")
	f.StringVar(&fileHash, "file-hash", "sha1", "Whole file hash (sha1, md5)")
	f.StringVar(&pieceHash, "piece-hash", "sha1", "Per piece hash (none, sha1, md5)")
	f.DurationVar(&cfg.DialTimeout, "timeout", peer.DefaultDialTimeout, "Connect and idle timeout of transfers")
	f.IntVarP(&cfg.Workers, "workers", "w", 0, "Worker pool size (0 = number of CPUs)")
	f.DurationVar(&cfg.MetricsInterval, "metrics", 0, "Log transfer metrics at this interval (0 = off)")
	f.StringSliceVarP(&subscribeTo, "sub", "s", nil, "Topics to subscribe to at start")
	f.BoolVarP(&runInteractive, "interactive", "i", true, "Start the interactive shell")
}
