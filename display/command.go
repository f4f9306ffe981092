// Package display chooses between human and machine output for CLI commands.
package display

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/errors"
)

// CallerEnv names the variable a calling program sets to request machine
// output, e.g. TWIN_CALLER=llm.
const CallerEnv = "TWIN_CALLER"

// IsMachineCaller reports whether the CLI was started by another program
// rather than a person.
func IsMachineCaller() bool {
	switch os.Getenv(CallerEnv) {
	case "llm", "agent", "script":
		return true
	}
	return false
}

// ShouldOutputJSON determines if a command should output JSON based on its
// --json flag and the caller.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return IsMachineCaller()
	}

	if cmd.Flags().Lookup("json") != nil && cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return IsMachineCaller()
}

// OutputJSON writes v to w using MarshalJSON.
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
