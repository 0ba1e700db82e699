package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/full_node"
	"github.com/Luismorlan/pow_ledger/layout"
	"go.uber.org/zap"
)

const usage = `commands:
  start | stop | restart        control mining
  add_peer <host> <port>        connect both ways to a node
  remove_peer <host> <port>     drop a peer
  list_peer                     print known peers
  sync                          adopt the longest valid peer chain
  show <depth>                  render the last blocks as a graphviz file`

// Run the terminal console until ctrl-c, then call done. Commands run off the
// gui loop, their failures land in the log view.
func runGui(ctx context.Context, sev *full_node.FullNodeServer, w *layout.ViewWriter, log *zap.Logger, done func()) error {
	g, err := layout.CreateGui(usage, func(line string) error {
		c, err := commands.CreateCommand(line)
		if err != nil {
			return err
		}
		go func() {
			if err := sev.HandleCommand(ctx, c); err != nil {
				log.Warn("command failed", zap.String("input", line), zap.Error(err))
			}
		}()
		return nil
	})
	if err != nil {
		return err
	}
	w.Attach(g)
	go func() {
		defer done()
		if err := layout.Run(g); err != nil {
			log.Error("console stopped", zap.Error(err))
		}
	}()
	return nil
}

// Parse commands from r until it closes and run them against the server.
func runConsole(ctx context.Context, r io.Reader, sev *full_node.FullNodeServer, log *zap.Logger) {
	fmt.Println(usage)
	scanner := bufio.NewScanner(r)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		c, err := commands.CreateCommand(text)
		if err != nil {
			log.Warn("invalid command", zap.String("input", text), zap.Error(err))
			continue
		}
		if err := sev.HandleCommand(ctx, c); err != nil {
			log.Warn("command failed", zap.String("input", text), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
