package commands

import "github.com/spf13/cobra"

// Register adds every twin command to root.
func Register(root *cobra.Command) {
	root.AddCommand(AmCmd)
	root.AddCommand(RegistryCmd)
	root.AddCommand(ValidateCmd)
	root.AddCommand(CheckCmd)
	root.AddCommand(SetCmd)
	root.AddCommand(GetCmd)
	root.AddCommand(MissingCmd)
	root.AddCommand(CompletenessCmd)
	root.AddCommand(MarkCmd)
	root.AddCommand(UsersCmd)
	root.AddCommand(DeleteCmd)
	root.AddCommand(SnapshotsCmd)
	root.AddCommand(ContextCmd)
	root.AddCommand(ImportCmd)
	root.AddCommand(ExportCmd)
	root.AddCommand(DbCmd)
	root.AddCommand(VersionCmd)
}
