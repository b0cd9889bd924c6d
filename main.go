package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"ghost-looper/api"
	"ghost-looper/config"
	"ghost-looper/debug"
	"ghost-looper/display"
	"ghost-looper/engine"
	"ghost-looper/midi"
	"ghost-looper/sequencer"
	"ghost-looper/theme"
	"ghost-looper/timebase"
	"ghost-looper/tui"
)

var (
	configPath string
	writeCfg   bool
	flags      overrides
)

// overrides are command line values applied on top of the config file
type overrides struct {
	bpm        uint32
	kit        string
	port       string
	serial     string
	baud       int
	synth      bool
	soundFont  string
	clockPort  string
	buttonPort string
	buttonNote int
	launchpad  bool
	seed       uint64
	storage    string
	palette    string
	api        bool
	apiAddr    string
	logEnabled bool
	logLevel   string
	logPath    string
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ghost-looper",
	Short: "A one-button MIDI drum looper with generated ghost notes",
	Long: `ghost-looper records a two bar drum loop from a single button and plays
it back with generated ghost notes, flams and fills.

Examples:
  ghost-looper run --out fluid --clock "midi through"
  ghost-looper headless --serial /dev/ttyUSB0 --api
  ghost-looper ports
  ghost-looper config --write`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the looper with the terminal UI",
	RunE:  runTUI,
}

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Run the looper without a UI",
	RunE:  runHeadless,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI and serial ports",
	RunE:  runPorts,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/ghost-looper/config.json)")
	pf.Uint32Var(&flags.bpm, "bpm", 120, "Startup tempo")
	pf.StringVar(&flags.kit, "kit", "gm", "Drum kit note map ("+strings.Join(sequencer.KitNames(), ", ")+")")
	pf.StringVarP(&flags.port, "out", "o", "", "MIDI output port name fragment")
	pf.StringVar(&flags.serial, "serial", "", "Serial MIDI device")
	pf.IntVar(&flags.baud, "baud", midi.DINBaud, "Serial baud rate")
	pf.BoolVar(&flags.synth, "synth", false, "Play through the local sound card")
	pf.StringVar(&flags.soundFont, "soundfont", "", "SoundFont (.sf2) for the local synth")
	pf.StringVar(&flags.clockPort, "clock", "", "MIDI clock input port name fragment")
	pf.StringVar(&flags.buttonPort, "button", "", "MIDI button input port name fragment")
	pf.IntVar(&flags.buttonNote, "button-note", midi.AnyNote, "Note acting as the button (-1 for any)")
	pf.BoolVar(&flags.launchpad, "launchpad", true, "Use a Launchpad pad as button and LED")
	pf.Uint64Var(&flags.seed, "seed", 1, "Ghost note random seed")
	pf.StringVar(&flags.storage, "storage", "", "Pattern file")
	pf.StringVar(&flags.palette, "palette", "", "GIMP palette (.gpl) for the UI")
	pf.BoolVar(&flags.api, "api", false, "Serve status over HTTP")
	pf.StringVar(&flags.apiAddr, "api-addr", "127.0.0.1:8080", "HTTP listen address")
	pf.BoolVar(&flags.logEnabled, "log", false, "Write a debug log")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logPath, "log-file", "", "Log file, - for stderr (default ~/.config/ghost-looper/debug.log)")

	configCmd.Flags().BoolVarP(&writeCfg, "write", "w", false, "Save the effective configuration")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(headlessCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("bpm") {
		cfg.Tempo.DefaultBPM = flags.bpm
	}
	if set("kit") {
		cfg.Kit.Name = flags.kit
	}
	if set("out") {
		cfg.Output.PortName = flags.port
	}
	if set("serial") {
		cfg.Output.SerialDevice = flags.serial
	}
	if set("baud") {
		cfg.Output.SerialBaud = flags.baud
	}
	if set("synth") {
		cfg.Output.Synth.Enabled = flags.synth
	}
	if set("soundfont") {
		cfg.Output.Synth.SoundFont = flags.soundFont
		cfg.Output.Synth.Enabled = true
	}
	if set("clock") {
		cfg.Input.ClockPort = flags.clockPort
	}
	if set("button") {
		cfg.Input.ButtonPort = flags.buttonPort
	}
	if set("button-note") {
		cfg.Input.ButtonNote = flags.buttonNote
	}
	if set("launchpad") {
		cfg.Input.Launchpad.Enabled = flags.launchpad
	}
	if set("seed") {
		cfg.Seed = flags.seed
	}
	if set("storage") {
		cfg.StoragePath = flags.storage
	}
	if set("palette") {
		cfg.UI.Palette = flags.palette
	}
	if set("api") {
		cfg.API.Enabled = flags.api
	}
	if set("api-addr") {
		cfg.API.Addr = flags.apiAddr
	}
	if set("log") {
		cfg.Log.Enabled = flags.logEnabled
	}
	if set("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if set("log-file") {
		cfg.Log.Path = flags.logPath
		cfg.Log.Enabled = true
	}
	cfg.Sanitize()
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if !cfg.Log.Enabled {
		return
	}
	level := debug.ParseLevel(cfg.Log.Level)
	// "-" logs to stderr, useful headless
	if cfg.Log.Path == "-" {
		debug.EnableWriter(os.Stderr, level)
		return
	}
	if err := debug.Enable(cfg.Log.Path, level); err != nil {
		fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
	}
}

// startAPI serves status in the background when enabled
func startAPI(ctx context.Context, cfg *config.Config, e *engine.Engine, wg *sync.WaitGroup) {
	if !cfg.API.Enabled {
		return
	}
	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer()
	e.AddRenderer(srv)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx, cfg.API.Addr); err != nil {
			debug.Log("api", "server stopped: %v", err)
		}
	}()
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	defer debug.Disable()

	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		debug.Log("ui", "palette %s: %v", cfg.UI.Palette, err)
	}
	th := theme.New(palette)

	e := engine.New(cfg, timebase.Real{})
	updates := tui.NewUpdates()
	e.AddRenderer(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startAPI(ctx, cfg, e, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.Run(ctx); err != nil {
			debug.Log("engine", "run: %v", err)
		}
	}()

	m := tui.NewModel(updates, e.Devices, e.Button, th)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()

	cancel()
	wg.Wait()
	return err
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	defer debug.Disable()

	e := engine.New(cfg, timebase.Real{})
	printer := newStatePrinter()
	e.AddRenderer(printer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var wg sync.WaitGroup
	startAPI(ctx, cfg, e, &wg)
	go printer.run(ctx)

	fmt.Println("ghost-looper running headless. Ctrl+C to exit.")
	err = e.Run(ctx)
	wg.Wait()
	return err
}

// statePrinter prints a line whenever the mode label changes
type statePrinter struct {
	labels chan string
	last   string
}

func newStatePrinter() *statePrinter {
	return &statePrinter{labels: make(chan string, 8)}
}

func (p *statePrinter) Render(ready bool, st sequencer.Status, _ []sequencer.Track) {
	label := fmt.Sprintf("%s %d bpm (%s)", display.Label(ready, st.State), st.BPM, st.ClockSource)
	select {
	case p.labels <- label:
	default:
	}
}

func (p *statePrinter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case label := <-p.labels:
			if label != p.last {
				fmt.Println(label)
				p.last = label
			}
		}
	}
}

func runPorts(cmd *cobra.Command, args []string) error {
	fmt.Println("=== MIDI Input Ports ===")
	ins, outs, err := midi.PortNames()
	if err != nil {
		return err
	}
	for i, name := range ins {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}

	fmt.Println("\n=== Serial Ports ===")
	serials, err := midi.SerialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	for i, name := range serials {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if !writeCfg {
		return nil
	}
	if configPath != "" {
		err = cfg.SaveTo(configPath)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		return err
	}
	fmt.Println("saved")
	return nil
}
