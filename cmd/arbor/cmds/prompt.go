package cmds

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tcnksm/go-input"
)

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// confirm asks a yes/no question. Without a terminal the answer is yes.
func confirm(query string) (bool, error) {
	if !interactive() {
		return true, nil
	}
	ui := &input.UI{
		Writer: os.Stdout,
		Reader: os.Stdin,
	}
	answer, err := ui.Ask(query, &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}

// ask reads a free-form answer, falling back to def without a terminal.
func ask(query string, def string) (string, error) {
	if !interactive() {
		return def, nil
	}
	ui := &input.UI{
		Writer: os.Stdout,
		Reader: os.Stdin,
	}
	return ui.Ask(query, &input.Options{
		Default:   def,
		HideOrder: true,
	})
}
