package main

import (
	"fmt"
	"os"

	"parley/server/internal/store"
)

// RunCLI handles maintenance subcommands. Returns true if a subcommand was
// handled and the process should exit.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("parley server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	default:
		return false
	}
}

func cliStatus(dbPath string) bool {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	users, _ := st.UserCount()
	groups, _ := st.GroupCount()
	pm, gm, _ := st.MessageCounts()

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", users)
	fmt.Printf("Groups: %d\n", groups)
	fmt.Printf("Messages: %d private, %d group\n", pm, gm)
	fmt.Printf("Version: %s\n", Version)
	return true
}
