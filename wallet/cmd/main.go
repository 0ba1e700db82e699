package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/layout"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/network"
	"github.com/Luismorlan/pow_ledger/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	keyPath  string
	nodeAddr string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "wallet",
		Short:        "Hold a key, check balances and send transfers through a full node",
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&keyPath, "key_path", "/tmp/mykey.pem", "file path of your private key")
	pf.StringVar(&nodeAddr, "node", "localhost:10000", "host:port of the full node to use")
	pf.StringVar(&logLevel, "log_level", "warn", "log level")

	rootCmd.AddCommand(createIdCmd(), addressCmd(), balanceCmd(), transferCmd(), consoleCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openWallet(create bool) (*wallet.Wallet, error) {
	log, err := logger.New(logLevel)
	if err != nil {
		return nil, err
	}
	return wallet.NewWallet(keyPath, create, log)
}

func connectedWallet() (*wallet.Wallet, error) {
	w, err := openWallet(false)
	if err != nil {
		return nil, err
	}
	return connect(w)
}

func connect(w *wallet.Wallet) (*wallet.Wallet, error) {
	addr, err := network.ParseAddress(nodeAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid --node address: %w", err)
	}
	if err := w.SetFullNodeConnection(addr); err != nil {
		return nil, err
	}
	return w, nil
}

func createIdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-id",
		Short: "Create a new key and print its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(keyPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite it", keyPath)
			}
			w, err := openWallet(true)
			if err != nil {
				return err
			}
			cmd.Println(w.Address())
			return nil
		},
	}
}

func addressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address and public key of your key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := openWallet(false)
			if err != nil {
				return err
			}
			cmd.Println("address:   ", w.Address())
			cmd.Println("public key:", w.PublicKeyHex())
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print your balance as seen by the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := connectedWallet()
			if err != nil {
				return err
			}
			defer w.Close()
			v, err := w.GetBalance(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%f\n", v)
			return nil
		},
	}
}

func transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <receiver address> <value>",
		Short: "Send value to a receiver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			w, err := connectedWallet()
			if err != nil {
				return err
			}
			defer w.Close()
			tx, err := w.TransferMoney(cmd.Context(), args[0], value)
			if err != nil {
				return err
			}
			cmd.Println("transaction sent:", tx.Id)
			return nil
		},
	}
}

const usage = `commands:
  transfer <address> <value>    send value to address
  my_address                    print your address
  connect <host> <port>         switch full node
  get_balance                   print your balance`

func consoleCmd() *cobra.Command {
	debugMode := false
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive wallet (transfer, my_address, connect, get_balance)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debugMode {
				w, err := connectedWallet()
				if err != nil {
					return err
				}
				defer w.Close()
				runConsole(cmd.Context(), w)
				return nil
			}
			return runGui(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&debugMode, "debug_mode", false, "plain stdin console instead of the terminal UI")
	return cmd
}

// Run the terminal console. Command output and wallet logs share the log
// view.
func runGui(ctx context.Context) error {
	view := layout.NewViewWriter()
	log, err := logger.NewWithWriter(logLevel, view)
	if err != nil {
		return err
	}
	w, err := wallet.NewWallet(keyPath, false, log)
	if err != nil {
		return err
	}
	if _, err := connect(w); err != nil {
		return err
	}
	defer w.Close()

	g, err := layout.CreateGui(usage, func(line string) error {
		c, err := commands.CreateClientCommand(line)
		if err != nil {
			return err
		}
		go func() {
			out, err := w.HandleCommand(ctx, c)
			if err != nil {
				log.Warn("command failed", zap.String("input", line), zap.Error(err))
				return
			}
			fmt.Fprintln(view, out)
		}()
		return nil
	})
	if err != nil {
		return err
	}
	view.Attach(g)
	fmt.Fprintln(view, "wallet address:", w.Address())
	return layout.Run(g)
}

// Parse command from stdio.
func runConsole(ctx context.Context, w *wallet.Wallet) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		c, err := commands.CreateClientCommand(text)
		if err != nil {
			fmt.Println(err)
			continue
		}
		out, err := w.HandleCommand(ctx, c)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(out)
	}
}
