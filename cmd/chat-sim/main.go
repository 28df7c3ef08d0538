package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// chat-sim drives the orchestrator from a terminal. Each stdin line is one
// inbound WhatsApp message and replies are printed instead of delivered.
func main() {
	from := flag.String("from", "15550000001", "sender address to simulate")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(getLevel(cfg.LogLevel), "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *from, os.Stdin, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "chat-sim: %v\n", err)
		os.Exit(1)
	}
}

func getLevel(level string) string {
	if strings.TrimSpace(level) == "" || level == "info" {
		return "warn"
	}
	return level
}

func run(ctx context.Context, cfg *appconfig.Config, from string, in io.Reader, out io.Writer, logger *logging.Logger) error {
	gw := &consoleGateway{out: out, bot: color.New(color.FgGreen)}
	rt, err := bootstrap.BuildRuntime(ctx, cfg, prometheus.NewRegistry(), logger, bootstrap.WithGateway(gw))
	if err != nil {
		return err
	}
	defer rt.Close()

	color.New(color.FgCyan).Fprintf(out, "simulating %s; type a message, Ctrl-D to quit\n", from)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rt.Orchestrator.Handle(ctx, from, text, "sim-"+uuid.NewString())
	}
	return scanner.Err()
}

// consoleGateway prints outbound messages.
type consoleGateway struct {
	mu  sync.Mutex
	out io.Writer
	bot *color.Color
}

func (g *consoleGateway) Send(_ context.Context, _ string, text, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.bot.Fprintf(g.out, "bot> %s\n", text)
	return err
}

func (g *consoleGateway) SendImage(_ context.Context, _ string, link, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.bot.Fprintf(g.out, "bot> [image] %s\n", link)
	return err
}

func (g *consoleGateway) MarkRead(context.Context, string) error {
	return nil
}
