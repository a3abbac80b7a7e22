package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/meshwatch/internal/app"
	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/meshcrypto"
	"github.com/skobkin/meshwatch/internal/radio"
)

const maxHexPreviewLen = 64

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("run decode tool", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	key := fs.String("key", config.DefaultEncryptionKey, "base64 channel key, or a preset name like LongFast")
	format := fs.String("format", "auto", "input encoding: auto, hex or base64")
	watchMode := fs.Bool("watch", false, "connect to the configured broker and log decoded traffic")
	configPath := fs.String("config", "", "config file for -watch")
	listenFor := fs.Duration("listen-for", 0, "stop -watch after this duration, e.g. 30s")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *watchMode {
		return watch(*configPath, *listenFor)
	}

	cipher, err := newCipher(*key)
	if err != nil {
		return fmt.Errorf("channel key: %w", err)
	}
	processor := radio.NewProcessor(cipher, radio.Capabilities{Crypto: cipher.Enabled(), Decode: true})

	inputs := fs.Args()
	if len(inputs) == 0 {
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				inputs = append(inputs, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if len(inputs) == 0 {
		return errors.New("no payloads: pass them as arguments or on stdin")
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for _, in := range inputs {
		raw, err := parsePayload(in, *format)
		if err != nil {
			return err
		}
		if err := enc.Encode(newReport(processor.Process(raw))); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	return nil
}

// newCipher accepts a base64 PSK and falls back to preset names that are not valid key material.
func newCipher(key string) (*meshcrypto.Cipher, error) {
	cipher, err := meshcrypto.NewCipher(key)
	if err == nil {
		return cipher, nil
	}

	return meshcrypto.NewCipher(meshcrypto.KeyForPreset(key))
}

// parsePayload accepts hex (optionally 0x-prefixed or spaced) or standard/URL base64.
func parsePayload(in, format string) ([]byte, error) {
	in = strings.TrimSpace(in)
	compact := strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimPrefix(strings.ToLower(in), "0x"))

	switch strings.ToLower(format) {
	case "hex":
		out, err := hex.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("decode hex: %w", err)
		}
		return out, nil
	case "base64":
		return decodeBase64(in)
	case "auto", "":
		if out, err := hex.DecodeString(compact); err == nil {
			return out, nil
		}
		return decodeBase64(in)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

func decodeBase64(in string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(in); err == nil {
			return out, nil
		}
	}

	return nil, fmt.Errorf("input is neither hex nor base64: %q", previewHex(in))
}

type report struct {
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	PacketID    uint64     `json:"id"`
	Channel     uint32     `json:"channel"`
	HopLimit    uint32     `json:"hop_limit"`
	HopStart    uint32     `json:"hop_start"`
	Hops        *int       `json:"hops,omitempty"`
	RxSNR       float32    `json:"rx_snr,omitempty"`
	RxRSSI      int32      `json:"rx_rssi,omitempty"`
	RelayNode   uint32     `json:"relay_node,omitempty"`
	ViaMQTT     bool       `json:"via_mqtt"`
	ChannelID   string     `json:"channel_id,omitempty"`
	GatewayID   string     `json:"gateway_id,omitempty"`
	Encrypted   bool       `json:"encrypted"`
	Port        string     `json:"port,omitempty"`
	BodyType    string     `json:"body_type,omitempty"`
	Body        radio.Body `json:"body,omitempty"`
	DecodeError string     `json:"decode_error,omitempty"`
	PayloadHex  string     `json:"payload_hex,omitempty"`
}

func newReport(res radio.ProcessedPacket) report {
	env := res.Envelope
	out := report{
		Success:     res.Success,
		Error:       res.Error,
		From:        domain.NodeIDFromNum(env.From),
		To:          domain.NodeIDFromNum(env.To),
		PacketID:    env.PacketID,
		Channel:     env.Channel,
		HopLimit:    env.HopLimit,
		HopStart:    env.HopStart,
		RxSNR:       env.RxSNR,
		RxRSSI:      env.RxRSSI,
		RelayNode:   env.RelayNode,
		ViaMQTT:     env.ViaMQTT,
		ChannelID:   env.ChannelID,
		GatewayID:   env.GatewayID,
		Encrypted:   res.Encrypted,
		Body:        res.Decoded.Body,
		DecodeError: res.Decoded.Err,
	}
	if hops, ok := env.Hops(); ok {
		out.Hops = &hops
	}
	if res.Decoded.Body != nil {
		out.Port = res.Decoded.PortName
		out.BodyType = fmt.Sprintf("%T", res.Decoded.Body)
		out.PayloadHex = hex.EncodeToString(res.Decoded.Raw)
	}

	return out
}

// watch runs the service stack without storage or HTTP and logs every bus event.
func watch(configPath string, listenFor time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if listenFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, listenFor)
		defer cancel()
	}

	rt, err := app.Initialize(ctx, app.Options{
		ConfigPath: configPath,
		Override: func(cfg *config.AppConfig) {
			cfg.Storage.Enabled = false
			cfg.HTTP.Enabled = false
			cfg.Alerts.DesktopNotifications = false
			cfg.Logging.Level = "debug"
			cfg.Logging.LogToFile = false
		},
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	logger := rt.LogManager.Logger("watch")
	logEvents(ctx, rt.Bus, logger)
	logger.Info("listening", "broker", rt.Session.StatusTarget(), "duration", listenFor)

	return rt.Run(ctx)
}

func logEvents(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	connSub := b.Subscribe(connectors.TopicConnStatus)
	rawSub := b.Subscribe(connectors.TopicRawPacket)
	nodeSub := b.Subscribe(connectors.TopicNodeUpdate)
	msgSub := b.Subscribe(connectors.TopicMessage)
	alertSub := b.Subscribe(connectors.TopicAlert)
	routeSub := b.Subscribe(connectors.TopicRoute)

	go func() {
		defer b.Unsubscribe(connSub, connectors.TopicConnStatus)
		defer b.Unsubscribe(rawSub, connectors.TopicRawPacket)
		defer b.Unsubscribe(nodeSub, connectors.TopicNodeUpdate)
		defer b.Unsubscribe(msgSub, connectors.TopicMessage)
		defer b.Unsubscribe(alertSub, connectors.TopicAlert)
		defer b.Unsubscribe(routeSub, connectors.TopicRoute)

		for {
			select {
			case <-ctx.Done():
				return
			case raw := <-connSub:
				if status, ok := raw.(connectors.ConnectionStatus); ok {
					logger.Info("conn", "state", status.State, "target", status.Target, "attempt", status.Attempt, "error", status.Err)
				}
			case raw := <-rawSub:
				if pkt, ok := raw.(connectors.RawPacket); ok {
					logger.Info("raw", "topic", pkt.Topic, "len", pkt.Len, "hex", previewHex(pkt.Hex))
				}
			case raw := <-nodeSub:
				if ev, ok := raw.(domain.NodeEvent); ok {
					logger.Info("node", "id", ev.Node.NodeID, "name", domain.NodeDisplayName(ev.Node), "new", ev.IsNew)
				}
			case raw := <-msgSub:
				if msg, ok := raw.(domain.Message); ok {
					logger.Info("text", "from", msg.SenderID, "to", msg.RecipientID, "channel", msg.Channel, "body", msg.Text)
				}
			case raw := <-alertSub:
				if alert, ok := raw.(domain.Alert); ok {
					logger.Info("alert", "type", alert.Type, "severity", alert.SeverityLabel(), "message", alert.Message)
				}
			case raw := <-routeSub:
				if route, ok := raw.(domain.MeshRoute); ok {
					logger.Info("route", "destination", route.DestinationID, "hops", route.HopCount())
				}
			}
		}
	}()
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
