package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tarun-kavipurapu/p2p-send/peer"
	"tarun-kavipurapu/p2p-send/pkg/content"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/pflag"
)

const (
	defaultPublishTimeout  = 0
	defaultPublishInterval = time.Second
)

// shell runs one command line at a time against a Controller.
type shell struct {
	ctrl *peer.Controller
	opts content.Options
	out  io.Writer
	exit func()
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) execute(in string) {
	blocks := splitArgs(strings.TrimSpace(in))
	if len(blocks) == 0 {
		return
	}

	var err error
	switch blocks[0] {
	case "exit", "quit":
		if s.exit != nil {
			s.exit()
		}
	case "help":
		s.help()
	case "list", "ls":
		for _, line := range s.ctrl.List() {
			s.printf("%s\n", line)
		}
	case "pub":
		err = s.publish(blocks[1:])
	case "unpub":
		err = s.withTopic(blocks, "unpub <topic>", s.ctrl.CancelPublish)
	case "sub":
		err = s.withTopic(blocks, "sub <topic>", func(topic string) error {
			_, err := s.ctrl.Subscribe(topic)
			return err
		})
	case "unsub":
		err = s.withTopic(blocks, "unsub <topic>", s.ctrl.CancelSubscribe)
	case "path":
		if len(blocks) < 2 {
			s.printf("%s\n", s.ctrl.DownloadPath())
			return
		}
		s.ctrl.SetDownloadPath(blocks[1])
	case "status":
		s.status()
	default:
		s.printf("Unknown command: %s\n", blocks[0])
	}
	if err != nil {
		s.printf("Error: %v\n", err)
	}
}

func (s *shell) withTopic(blocks []string, usage string, fn func(topic string) error) error {
	if len(blocks) != 2 {
		s.printf("Usage: %s\n", usage)
		return nil
	}
	return fn(blocks[1])
}

var errPubUsage = errors.New("usage: pub [-t timeout] [-i interval] <topic> text <message...> | file <path...>")

// publish handles: pub [-t timeout] [-i interval] <topic> text|file <args...>
func (s *shell) publish(args []string) error {
	flags := pflag.NewFlagSet("pub", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	timeout := flags.DurationP("timeout", "t", defaultPublishTimeout, "unpublish after this long (0 = never)")
	interval := flags.DurationP("interval", "i", defaultPublishInterval, "time between announcements")
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errPubUsage, err)
	}
	rest := flags.Args()
	if len(rest) < 3 {
		return errPubUsage
	}
	topic, kind, payload := rest[0], rest[1], rest[2:]

	var ct content.Content
	switch kind {
	case "text":
		txt, err := content.NewText(strings.Join(payload, " "), s.opts.PieceSize)
		if err != nil {
			return err
		}
		ct = txt
	case "file", "files":
		entries, err := collectEntries(payload)
		if err != nil {
			return err
		}
		files, err := content.NewFiles(entries, s.opts)
		if err != nil {
			return err
		}
		s.printf("Prepared %d file(s), %s\n", len(files.Files()), formatBytes(float64(files.TotalLength())))
		ct = files
	default:
		return errPubUsage
	}

	if _, err := s.ctrl.Publish(ct, topic, *timeout, *interval); err != nil {
		return err
	}
	s.printf("Publishing %q\n", topic)
	return nil
}

func (s *shell) status() {
	m := s.ctrl.Metrics()
	s.printf("Uptime:        %s\n", formatDuration(m.Uptime))
	s.printf("Sent:          %d file(s), %d text(s), %s\n", m.FilesSent, m.TextsSent, formatBytes(float64(m.BytesSent)))
	s.printf("Received:      %d file(s), %d text(s), %s\n", m.FilesReceived, m.TextsReceived, formatBytes(float64(m.BytesReceived)))
	s.printf("Announcements: %d\n", m.Announcements)
	s.printf("Failures:      %d\n", m.Failures)

	downloads := s.ctrl.Downloads()
	if len(downloads) == 0 {
		return
	}
	s.printf("Downloads:\n")
	for _, dt := range downloads {
		s.printf("  %s\n", renderDownload(dt))
	}
}

func (s *shell) help() {
	s.printf("Available commands:\n")
	s.printf("  list                              - Show published and subscribed topics\n")
	s.printf("  pub <topic> text <message...>     - Publish text\n")
	s.printf("  pub <topic> file <path...>        - Publish files or directories\n")
	s.printf("      -t <duration>                 - Unpublish after duration (default never)\n")
	s.printf("      -i <duration>                 - Announcement interval (default 1s)\n")
	s.printf("  unpub <topic>                     - Stop publishing a topic\n")
	s.printf("  sub <topic>                       - Subscribe to a topic\n")
	s.printf("  unsub <topic>                     - Unsubscribe from a topic\n")
	s.printf("  path [dir]                        - Show or set the download directory\n")
	s.printf("  status                            - Show transfer statistics\n")
	s.printf("  exit                              - Stop and exit\n")
}

func completer(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "list", Description: "Show topics"},
		{Text: "pub", Description: "Publish text or files"},
		{Text: "unpub", Description: "Stop publishing"},
		{Text: "sub", Description: "Subscribe to a topic"},
		{Text: "unsub", Description: "Unsubscribe"},
		{Text: "path", Description: "Download directory"},
		{Text: "status", Description: "Transfer statistics"},
		{Text: "exit", Description: "Exit"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

// splitArgs is a simple shell-like split that keeps "quoted strings" together.
func splitArgs(line string) []string {
	var parts []string
	var cur strings.Builder
	inQ, quoted := false, false
	for _, c := range line {
		switch {
		case c == '"':
			inQ = !inQ
			quoted = true
		case (c == ' ' || c == '\t') && !inQ:
			if cur.Len() > 0 || quoted {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			quoted = false
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 || quoted {
		parts = append(parts, cur.String())
	}
	return parts
}

// collectEntries turns files and directories into advertised entries. A file is
// advertised by its base name, a directory's files by their path relative to the
// directory's parent, so the directory name is kept.
func collectEntries(paths []string) ([]content.Entry, error) {
	var result []content.Entry
	for _, raw := range paths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("not found: %s", raw)
		}
		if !info.IsDir() {
			result = append(result, content.Entry{Name: info.Name(), Path: abs})
			continue
		}
		parent := filepath.Dir(abs)
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.Type().IsRegular() {
				return err
			}
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return err
			}
			result = append(result, content.Entry{Name: filepath.ToSlash(rel), Path: path})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(result) == 0 {
		return nil, content.ErrNoFiles
	}
	return result, nil
}
