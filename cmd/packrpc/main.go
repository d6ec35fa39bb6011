package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexwire/packrpc/internal/protocol"
	"github.com/hexwire/packrpc/pkg/msgpack"
	"github.com/hexwire/packrpc/pkg/packrpc"
)

var rootCmd = &cobra.Command{
	Use:     "packrpc",
	Short:   "packrpc - a MessagePack codec and RPC toolkit",
	Long:    `packrpc encodes and decodes MessagePack, and drives the packrpc Server/Pool RPC layer built on top of it.`,
	Version: "0.1.0",
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Read JSON from stdin and write its MessagePack encoding to stdout",
	RunE:  runEncode,
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Read MessagePack from stdin and write its JSON projection to stdout",
	RunE:  runDecode,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a Server with a small built-in handler set",
	RunE:  runServe,
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Dial a Server's socket and invoke a method",
	RunE:  runCall,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)

	serveCmd.Flags().String("config", "", "path to a packrpc config file")
	serveCmd.Flags().String("socket", "", "socket path (overrides config when set)")

	callCmd.Flags().String("socket", "", "socket path to dial")
	callCmd.Flags().String("method", "", "method name to invoke")
	callCmd.Flags().String("body", "null", "JSON request body")
	callCmd.Flags().Duration("timeout", 5*time.Second, "call timeout")
	_ = callCmd.MarkFlagRequired("socket")
	_ = callCmd.MarkFlagRequired("method")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEncode(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}

	mv, err := packrpc.ToMessagePackValue(decoded)
	if err != nil {
		return fmt.Errorf("convert to msgpack value: %w", err)
	}

	sink, err := msgpack.Encode(mv)
	if err != nil {
		return fmt.Errorf("encode msgpack: %w", err)
	}

	_, err = os.Stdout.Write(sink.Bytes())
	return err
}

func runDecode(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	mv, err := msgpack.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode msgpack: %w", err)
	}

	projected := packrpc.FromMessagePackValue(mv)
	out, err := json.Marshal(projected)
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	fmt.Println(string(out))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	socketOverride, _ := cmd.Flags().GetString("socket")

	cfg, err := packrpc.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := packrpc.NewLogger(cfg.Logging)

	socketPath := socketOverride
	if socketPath == "" {
		sm := packrpc.NewSocketManager(cfg.Socket)
		if err := sm.EnsureSocketDir(); err != nil {
			return fmt.Errorf("ensure socket dir: %w", err)
		}
		socketPath = sm.GenerateSocketPath("0")
	}

	srv, err := packrpc.NewServer(packrpc.ServerOptions{
		ID:           "0",
		SocketPath:   socketPath,
		Codec:        packrpc.CodecType(cfg.Server.Codec),
		Security:     cfg.Security,
		Enhanced:     cfg.Protocol.Enhanced,
		StartTimeout: cfg.Pool.StartTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	registerBuiltinHandlers(srv)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Fprintf(os.Stderr, "packrpc serving on %s\n", socketPath)

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down")
	return srv.Stop()
}

func registerBuiltinHandlers(srv *packrpc.Server) {
	srv.RegisterHandler("echo", func(ctx context.Context, body interface{}) (interface{}, error) {
		return body, nil
	})
	srv.RegisterHandler("time", func(ctx context.Context, body interface{}) (interface{}, error) {
		return map[string]interface{}{"unix": time.Now().Unix()}, nil
	})
}

func runCall(cmd *cobra.Command, args []string) error {
	socketPath, _ := cmd.Flags().GetString("socket")
	method, _ := cmd.Flags().GetString("method")
	bodyJSON, _ := cmd.Flags().GetString("body")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var decodedBody interface{}
	if err := json.Unmarshal([]byte(bodyJSON), &decodedBody); err != nil {
		return fmt.Errorf("decode --body as JSON: %w", err)
	}

	mv, err := packrpc.ToMessagePackValue(decodedBody)
	if err != nil {
		return fmt.Errorf("convert request body: %w", err)
	}

	logger := packrpc.NewLogger(packrpc.LoggingConfig{Level: "error", Format: "text"})
	transport, err := packrpc.NewUDSTransport(packrpc.TransportConfig{Type: "uds", Address: socketPath}, logger)
	if err != nil {
		return fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := transport.Call(ctx, &protocol.Request{Method: method, Body: mv})
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if !resp.OK {
		return fmt.Errorf("%s returned an error: %s", method, resp.ErrorMsg)
	}

	projected := packrpc.FromMessagePackValue(resp.Body)
	out, err := json.Marshal(projected)
	if err != nil {
		return fmt.Errorf("encode response as JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
