// pagevaultd is an interactive REPL for exercising a BufferPoolManager
// directly: a diagnostic and teaching tool, not a network service.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/pagevaultdb/pagevault/internal/bufferpool"
	"github.com/pagevaultdb/pagevault/internal/config"
	"github.com/pagevaultdb/pagevault/internal/diskstore"
	"github.com/pagevaultdb/pagevault/internal/wal"
	"github.com/pagevaultdb/pagevault/pkg/logger"
	"github.com/pagevaultdb/pagevault/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a pagevault YAML config file")
	flag.Parse()

	cfg := config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pagevaultd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Config{
			PoolSize: config.DefaultPoolSize,
			K:        config.DefaultK,
			BucketSize: config.DefaultBucketSize,
			DataFile: "pagevault.db",
			WALDir:   "pagevault-wal",
			Logger:   loggerConfig(),
		}
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagevaultd: logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("telemetry init failed", zap.Error(err))
	}
	defer shutdown(context.Background())

	store, err := diskstore.Open(cfg.DataFile, bufferpool.PageSize, diskstore.WithLogger(log))
	if err != nil {
		log.Fatal("open data file failed", zap.Error(err))
	}
	defer store.Close()

	logSink, err := wal.Open(cfg.WALDir, log)
	if err != nil {
		log.Fatal("open wal failed", zap.Error(err))
	}
	defer logSink.Close()

	mtr, err := bufferpool.NewMetrics(tel.Meter)
	if err != nil {
		log.Fatal("metrics init failed", zap.Error(err))
	}

	bpm := bufferpool.New(bufferpool.Config{
		PoolSize:   cfg.PoolSize,
		K:          cfg.K,
		BucketSize: cfg.BucketSize,
	}, store, logSink, mtr, log)

	histFile := historyPath()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagevault> ",
		HistoryFile:     histFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatal("readline init failed", zap.Error(err))
	}
	defer rl.Close()

	fmt.Println("pagevault REPL. Type 'help' for commands, 'exit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return
			}
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			continue
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return
		}
		dispatch(bpm, fields)
	}
}

func loggerConfig() logger.Config {
	return logger.Config{Level: "info", Format: "console", OutputFile: "stdout"}
}

func historyPath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "pagevault")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

func dispatch(bpm *bufferpool.BufferPoolManager, args []string) {
	switch args[0] {
	case "help":
		printHelp()
	case "new":
		cmdNew(bpm)
	case "fetch":
		if len(args) < 2 {
			fmt.Println("usage: fetch <page_id>")
			return
		}
		cmdFetch(bpm, args[1])
	case "unpin":
		if len(args) < 3 {
			fmt.Println("usage: unpin <page_id> <true|false>")
			return
		}
		cmdUnpin(bpm, args[1], args[2])
	case "flush":
		if len(args) < 2 {
			fmt.Println("usage: flush <page_id>")
			return
		}
		cmdFlush(bpm, args[1])
	case "flushall":
		if err := bpm.FlushAll(); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")
	case "delete":
		if len(args) < 2 {
			fmt.Println("usage: delete <page_id>")
			return
		}
		cmdDelete(bpm, args[1])
	case "stat":
		fmt.Println("use 'fetch'/'new' return values to inspect page state; no separate stat surface is exposed by the core")
	default:
		fmt.Printf("unknown command %q, type 'help'\n", args[0])
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  new                       allocate and pin a fresh page")
	fmt.Println("  fetch <page_id>           pin an existing page, printing its bytes (hex)")
	fmt.Println("  unpin <page_id> <dirty>   release one pin, dirty is true or false")
	fmt.Println("  flush <page_id>           write a resident page through to disk")
	fmt.Println("  flushall                  write every dirty resident page through to disk")
	fmt.Println("  delete <page_id>          remove a page, if unpinned")
	fmt.Println("  exit                      leave the REPL")
}

func parsePageID(s string) (bufferpool.PageID, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return bufferpool.InvalidPageID, err
	}
	return bufferpool.PageID(n), nil
}

func cmdNew(bpm *bufferpool.BufferPoolManager) {
	h, err := bpm.NewPage()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("new page id=%d\n", h.PageID())
}

func cmdFetch(bpm *bufferpool.BufferPoolManager, arg string) {
	id, err := parsePageID(arg)
	if err != nil {
		fmt.Printf("bad page id: %v\n", err)
		return
	}
	h, err := bpm.FetchPage(id)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if h == nil {
		fmt.Println("not found")
		return
	}
	fmt.Printf("page %d: %s...\n", id, hex.EncodeToString(h.Data()[:32]))
}

func cmdUnpin(bpm *bufferpool.BufferPoolManager, idArg, dirtyArg string) {
	id, err := parsePageID(idArg)
	if err != nil {
		fmt.Printf("bad page id: %v\n", err)
		return
	}
	dirty, err := strconv.ParseBool(dirtyArg)
	if err != nil {
		fmt.Printf("bad dirty flag: %v\n", err)
		return
	}
	fmt.Println(bpm.UnpinPage(id, dirty))
}

func cmdFlush(bpm *bufferpool.BufferPoolManager, idArg string) {
	id, err := parsePageID(idArg)
	if err != nil {
		fmt.Printf("bad page id: %v\n", err)
		return
	}
	ok, err := bpm.FlushPage(id)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}
	fmt.Println("ok")
}

func cmdDelete(bpm *bufferpool.BufferPoolManager, idArg string) {
	id, err := parsePageID(idArg)
	if err != nil {
		fmt.Printf("bad page id: %v\n", err)
		return
	}
	fmt.Println(bpm.DeletePage(id))
}
