package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// mustFlag reads a flag registered in init(). A lookup error means the flag
// name or type is wrong in code, so it panics instead of returning.
func mustFlag[T any](name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustFlag(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return mustFlag(name, cmd.Flags().GetStringSlice)
}

// getDateFlag parses an optional YYYY-MM-DD flag. An empty value yields the
// zero time, which the ledger treats as an open bound.
func getDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s := mustGetString(cmd, name)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := database.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, expected %s", name, s, database.DateLayout)
	}
	return d, nil
}
