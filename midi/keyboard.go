package midi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// KeyboardController turns a key (or any key) on a MIDI keyboard or pedal
// into the looper button
type KeyboardController struct {
	id    string
	input *Input
}

// NewKeyboardController starts listening on inPort. The route may also
// carry a clock sink when the same port sends timing clock.
func NewKeyboardController(id string, inPort drivers.In, route Route) (*KeyboardController, error) {
	in, err := OpenInput(id, inPort, route)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return &KeyboardController{id: id, input: in}, nil
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Type() ControllerType {
	return ControllerKeyboard
}

// SetIndicator is a no-op for keyboards (no visual feedback)
func (kb *KeyboardController) SetIndicator(on bool) error {
	return nil
}

func (kb *KeyboardController) Close() error {
	return kb.input.Close()
}
