// clocksend drives a MIDI port with 24 PPQN timing clock, for exercising
// external sync without a drum machine.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"ghost-looper/midi"
	"ghost-looper/tempo"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "send":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		bpm := uint32(tempo.DefaultBPM)
		if len(os.Args) > 3 {
			v, err := strconv.ParseUint(os.Args[3], 10, 32)
			if err != nil {
				fmt.Printf("bad bpm %q: %v\n", os.Args[3], err)
				os.Exit(2)
			}
			bpm = tempo.ClampBPM(uint32(v))
		}
		sendClock(os.Args[2], bpm)
	case "stop":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		sendStop(os.Args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI clock sender")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list              - List all MIDI output ports")
	fmt.Println("  send <port> [bpm] - Send Start, then clock until Ctrl+C")
	fmt.Println("  stop <port>       - Send Stop")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	_, outs, err := midi.PortNames()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func findOut(pattern string) drivers.Out {
	for _, p := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(pattern)) {
			return p
		}
	}
	return nil
}

func open(pattern string) func(gomidi.Message) error {
	outPort := findOut(pattern)
	if outPort == nil {
		fmt.Printf("No output port matching %q\n", pattern)
		os.Exit(1)
	}
	fmt.Printf("Using output: %s\n", outPort.String())

	send, err := gomidi.SendTo(outPort)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		os.Exit(1)
	}
	return send
}

// PulseInterval is the spacing of timing clock messages at bpm
func PulseInterval(bpm uint32) time.Duration {
	return time.Minute / time.Duration(bpm*tempo.PulsesPerQuarter)
}

func sendClock(pattern string, bpm uint32) {
	send := open(pattern)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	fmt.Printf("Sending Start + clock at %d bpm. Ctrl+C to stop.\n", bpm)
	if err := send(gomidi.Message{midi.Start}); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ticker := time.NewTicker(PulseInterval(bpm))
	defer ticker.Stop()

	pulses := 0
	for {
		select {
		case <-interrupt:
			send(gomidi.Message{midi.Stop})
			fmt.Printf("\nStopped after %d pulses\n", pulses)
			return
		case <-ticker.C:
			if err := send(gomidi.Message{midi.TimingClock}); err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			pulses++
			if pulses%(tempo.PulsesPerQuarter*4) == 0 {
				fmt.Printf("\rbar %d", pulses/(tempo.PulsesPerQuarter*4))
			}
		}
	}
}

func sendStop(pattern string) {
	send := open(pattern)
	if err := send(gomidi.Message{midi.Stop}); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}
