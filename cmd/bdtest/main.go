// Command bdtest checks connectivity and functionality of a Panasonic
// Blu-ray player before adding it to the bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"panasonic_bd/internal/bluray"
	"panasonic_bd/internal/netcheck"
)

// ANSI color codes for terminal output
const (
	colorHeader = "\033[95m"
	colorBlue   = "\033[94m"
	colorCyan   = "\033[96m"
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
	colorRed    = "\033[91m"
	colorBold   = "\033[1m"
	colorEnd    = "\033[0m"
)

// safeCommands don't change playback
var safeCommands = []string{"DSPSEL", "PLAYBACKINFO"}

type printer struct {
	w io.Writer
}

func (p printer) header(text string) {
	line := strings.Repeat("=", 60)
	pad := (60 - len(text)) / 2
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.w, "\n%s%s%s%s\n", colorHeader, colorBold, line, colorEnd)
	fmt.Fprintf(p.w, "%s%s%s%s%s\n", colorHeader, colorBold, strings.Repeat(" ", pad), text, colorEnd)
	fmt.Fprintf(p.w, "%s%s%s%s\n\n", colorHeader, colorBold, line, colorEnd)
}

func (p printer) pass(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s[PASS]%s %s\n", colorGreen, colorEnd, fmt.Sprintf(format, args...))
}

func (p printer) fail(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s[FAIL]%s %s\n", colorRed, colorEnd, fmt.Sprintf(format, args...))
}

func (p printer) warn(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s[WARN]%s %s\n", colorYellow, colorEnd, fmt.Sprintf(format, args...))
}

func (p printer) info(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s[INFO]%s %s\n", colorCyan, colorEnd, fmt.Sprintf(format, args...))
}

func (p printer) detail(label, value string) {
	fmt.Fprintf(p.w, "       %s%s:%s %s\n", colorBlue, label, colorEnd, value)
}

func (p printer) line(text string) {
	fmt.Fprintln(p.w, text)
}

type options struct {
	host       string
	key        string
	statusOnly bool
	commands   bool
	verbose    bool
}

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.host, "host", "", "Player IP address (overrides PANASONIC_BD_HOST)")
	flag.StringVar(&opts.host, "H", "", "Shorthand for -host")
	flag.StringVar(&opts.key, "key", "", "Player key for UHD authentication (overrides PANASONIC_BD_PLAYER_KEY)")
	flag.StringVar(&opts.key, "k", "", "Shorthand for -key")
	flag.BoolVar(&opts.statusOnly, "status", false, "Only get player status, skip other tests")
	flag.BoolVar(&opts.statusOnly, "s", false, "Shorthand for -status")
	flag.BoolVar(&opts.commands, "commands", false, "Enable interactive command testing")
	flag.BoolVar(&opts.commands, "c", false, "Shorthand for -commands")
	flag.BoolVar(&opts.verbose, "v", false, "Log protocol traffic")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), "\nSet PANASONIC_BD_HOST in .env or the environment, or pass -host.")
		fmt.Fprintln(flag.CommandLine.Output(), "For UHD players, also set PANASONIC_BD_PLAYER_KEY if needed.")
	}
	flag.Parse()

	if opts.host == "" {
		opts.host = os.Getenv("PANASONIC_BD_HOST")
	}
	if opts.key == "" {
		opts.key = os.Getenv("PANASONIC_BD_PLAYER_KEY")
	}

	os.Exit(run(context.Background(), opts, os.Stdout))
}

func run(ctx context.Context, opts options, w io.Writer) int {
	p := printer{w: w}

	if opts.host == "" {
		fmt.Fprintf(w, "%sError: No player IP address specified.%s\n\n", colorRed, colorEnd)
		p.line("Set the IP address using one of these methods:")
		p.line("  1. Create a .env file with PANASONIC_BD_HOST=your_ip")
		p.line("  2. Set the PANASONIC_BD_HOST environment variable")
		p.line("  3. Use the -host command line flag")
		return 1
	}
	if _, err := netip.ParseAddr(opts.host); err != nil {
		fmt.Fprintf(w, "%sError: Invalid IP address format: %s%s\n", colorRed, opts.host, colorEnd)
		return 1
	}

	p.header("Panasonic Blu-ray Player Test")
	p.info("Player IP: %s", opts.host)
	if opts.key != "" {
		p.info("Player Key: %s", maskKey(opts.key))
	}

	p.header("Ping Test")
	pingOK := testPing(ctx, p, opts.host)
	if !pingOK {
		p.warn("Ping failed, but continuing with other tests...")
		p.info("Some players may block ping but still respond to HTTP requests.")
	}

	p.header("Network Validation")
	checkSubnet(p, opts.host)

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	client := bluray.New(bluray.Config{
		Host:      opts.host,
		PlayerKey: opts.key,
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	defer client.Close()

	results := []result{{name: "Ping", passed: pingOK}}

	p.header("Connection Test")
	connected := testConnection(ctx, p, client)
	results = append(results, result{name: "Connection", passed: connected})
	if !connected {
		p.fail("Connection failed. Cannot continue with other tests.")
		p.line("")
		p.line("Troubleshooting tips:")
		p.line("  1. Ensure the player is powered on (not in standby without Quick Start)")
		p.line("  2. Verify Remote Device Operation is enabled on the player")
		p.line("  3. Check that the IP address is correct")
		p.line("  4. Ensure no firewall is blocking port 80")
		return 1
	}

	if !opts.statusOnly {
		p.header("Player Detection")
		results = append(results, result{name: "Detection", passed: testDetection(ctx, p, client, opts.key != "")})
	}

	p.header("Player Status")
	results = append(results, result{name: "Status", passed: testStatus(ctx, p, client)})

	if opts.commands {
		p.header("Command Testing")
		testCommands(ctx, p, client)
	}

	p.header("Test Summary")
	return summarize(p, results)
}

type result struct {
	name   string
	passed bool
}

func summarize(p printer, results []result) int {
	allPassed := true
	for _, r := range results {
		if r.passed {
			p.pass("%s test passed", r.name)
		} else {
			p.fail("%s test failed", r.name)
			allPassed = false
		}
	}
	p.line("")
	if allPassed {
		fmt.Fprintf(p.w, "%s%sAll tests passed!%s\n\n", colorGreen, colorBold, colorEnd)
		p.line("Your player is ready to use with the bridge.")
		return 0
	}
	fmt.Fprintf(p.w, "%s%sSome tests had issues.%s\n\n", colorYellow, colorBold, colorEnd)
	p.line("Review the output above for details.")
	return 1
}

func maskKey(key string) string {
	tail := key
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return strings.Repeat("*", 8) + "..." + tail
}

func testPing(ctx context.Context, p printer, host string) bool {
	p.info("Pinging %s...", host)
	res := netcheck.Ping(ctx, host, 3*time.Second)
	if res.OK {
		p.pass("%s", res.Message)
		p.info("The player is powered on or Quick Start is enabled.")
		return true
	}
	p.fail("%s", res.Message)
	p.warn("The player may be:")
	p.line("       - Powered off completely")
	p.line("       - In standby without Quick Start enabled")
	p.line("       - On a different network/VLAN")
	p.line("       - Blocking ICMP ping requests")
	p.info("Tip: Enable 'Quick Start' in Player Settings -> System to allow")
	p.line("     the player to respond while in standby mode.")
	return false
}

func checkSubnet(p printer, host string) {
	locals, err := netcheck.LocalAddrs()
	if err != nil {
		p.warn("Could not list local interfaces: %v", err)
	}
	if len(locals) > 0 {
		p.info("Local IP addresses detected:")
		for _, l := range locals {
			p.detail(l.Interface, l.Addr.String())
		}
	}

	res := netcheck.CheckSameSubnet(host, locals)
	if res.Same {
		p.pass("%s", res.Message)
		return
	}
	p.fail("%s", res.Message)
	p.line("       The Panasonic player will not respond correctly to cross-subnet requests.")
	p.line("       Run this test from a machine on the same network as the player.")
	p.warn("The player may not respond correctly. Continuing anyway...")
}

func testConnection(ctx context.Context, p printer, client *bluray.Client) bool {
	p.info("Testing connection to player...")
	if client.TestConnection(ctx) {
		p.pass("Connection successful")
		return true
	}
	p.fail("Connection failed - player did not respond correctly")
	return false
}

func testDetection(ctx context.Context, p printer, client *bluray.Client, hasKey bool) bool {
	p.info("Detecting player type...")
	playerType, err := client.DetectPlayerType(ctx)
	if err != nil {
		p.fail("Detection failed: %v", err)
		return false
	}
	switch playerType {
	case bluray.PlayerTypeBD:
		p.pass("Detected: BD Player (full status support)")
		p.detail("Features", "Extended status, chapters, duration")
	case bluray.PlayerTypeUHD:
		p.pass("Detected: UHD Player (limited status)")
		p.detail("Features", "Basic status, elapsed time only")
		if !hasKey {
			p.warn("UHD player may need player key for remote commands")
		}
	default:
		p.warn("Could not determine player type (AUTO)")
	}
	return true
}

func testStatus(ctx context.Context, p printer, client *bluray.Client) bool {
	p.info("Getting player status...")
	status, err := client.GetPlayStatus(ctx)
	if err != nil {
		p.fail("Status retrieval failed: %v", err)
		return false
	}

	p.pass("Status retrieved successfully")
	p.detail("State", string(status.State))
	p.detail("Status", status.StatusString)
	p.detail("Position", fmt.Sprintf("%d seconds", status.Position))
	if status.Duration > 0 {
		p.detail("Duration", fmt.Sprintf("%d seconds", status.Duration))
		p.detail("Progress", fmt.Sprintf("%.1f%%", progress(status.Position, status.Duration)))
	}
	if status.ChapterCurrent != nil {
		chapter := fmt.Sprintf("%d", *status.ChapterCurrent)
		if status.ChapterTotal != nil {
			chapter += fmt.Sprintf(" / %d", *status.ChapterTotal)
		}
		p.detail("Chapter", chapter)
	}
	return true
}

func progress(position, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(position) / float64(duration) * 100
}

func commandCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range bluray.Commands() {
		items = append(items, readline.PcItem(c))
	}
	items = append(items, readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}

func testCommands(ctx context.Context, p printer, client *bluray.Client) {
	p.info("Command testing mode")
	p.line("")
	p.line("  Safe test commands: " + strings.Join(safeCommands, ", "))
	p.line("")
	p.line("  All available commands:")
	all := bluray.Commands()
	for i := 0; i < len(all); i += 8 {
		end := i + 8
		if end > len(all) {
			end = len(all)
		}
		p.line("    " + strings.Join(all[i:end], ", "))
	}
	p.line("")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorCyan + "Command> " + colorEnd,
		AutoComplete:    commandCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		p.fail("Failed to start prompt: %v", err)
		return
	}
	defer rl.Close()

	out := printer{w: rl.Stdout()}
	fmt.Fprintf(out.w, "%sEnter commands to test (or 'quit' to exit):%s\n", colorYellow, colorEnd)
	fmt.Fprintf(out.w, "%sNote: Some commands may affect playback or player state.%s\n\n", colorYellow, colorEnd)

	for {
		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			out.line("Exiting command test mode.")
			return
		}

		command := strings.ToUpper(strings.TrimSpace(line))
		switch command {
		case "", "QUIT", "EXIT", "Q":
			return
		}
		if !bluray.IsCommand(command) {
			out.warn("Unknown command: %s", command)
			continue
		}

		out.info("Sending command: %s", command)
		res, err := client.SendCommand(ctx, command)
		switch {
		case err != nil:
			out.fail("Command error: %v", err)
		case res.Success:
			out.pass("Command '%s' executed successfully", command)
		default:
			out.fail("Command '%s' failed: %s", command, res.Error)
		}
	}
}
