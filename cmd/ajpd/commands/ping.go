package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/spf13/cobra"
)

var (
	pingNetwork    string
	pingCount      int
	pingTimeout    time.Duration
	pingPacketSize int
	pingRequest    string
	pingSecret     string
)

var pingCmd = &cobra.Command{
	Use:   "ping [address]",
	Short: "Check an AJP endpoint with CPING/CPONG",
	Long: `Send CPING probes to an AJP endpoint and report the round-trip time.

With --request, a GET for the given URI is forwarded after the probes and the
response status is printed.

Examples:
  ajpd ping
  ajpd ping 10.0.0.5:8009 --count 5
  ajpd ping /run/ajpd.sock --network unix --request /status`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

func init() {
	pingCmd.Flags().StringVar(&pingNetwork, "network", "tcp", "Network type: tcp or unix")
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "Number of CPING probes to send")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "Timeout for each probe")
	pingCmd.Flags().IntVar(&pingPacketSize, "packet-size", ajpproto.DefaultPacketSize, "AJP packet size")
	pingCmd.Flags().StringVar(&pingRequest, "request", "", "Forward a GET for this URI after pinging")
	pingCmd.Flags().StringVar(&pingSecret, "secret", "", "Request secret to send with --request")
}

func runPing(cmd *cobra.Command, args []string) error {
	address := fmt.Sprintf("localhost:%d", ajp.DefaultPort)
	if len(args) == 1 {
		address = args[0]
	}
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	client, err := ajpproto.Dial(ctx, pingNetwork, address, pingPacketSize)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	out := cmd.OutOrStdout()
	for i := 0; i < pingCount; i++ {
		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		rtt, err := client.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("probe %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "CPONG from %s: seq=%d time=%s\n", address, i+1, rtt.Round(time.Microsecond))
	}

	if pingRequest == "" {
		return nil
	}

	req := &ajpproto.ForwardRequest{
		Method:        http.MethodGet,
		Protocol:      "HTTP/1.1",
		RequestURI:    pingRequest,
		RemoteAddr:    "127.0.0.1",
		ServerName:    "localhost",
		ServerPort:    80,
		Header:        http.Header{"Host": []string{"localhost"}},
		Secret:        pingSecret,
		ContentLength: -1,
	}

	ctx, cancel = context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()
	resp, _, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("request %s: %w", pingRequest, err)
	}
	fmt.Fprintf(out, "GET %s: %d %s (%d bytes)\n", pingRequest, resp.Status, resp.Message, len(resp.Body))
	return nil
}
