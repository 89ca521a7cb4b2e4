// Command adminkey prints the bcrypt hash of an admin API key for use as
// http.admin_api_key_hash in the gateway configuration.
package main

import (
	"fmt"
	"os"

	"github.com/proxmcp/gateway/internal/adminkey"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: adminkey <key>")
		os.Exit(2)
	}

	hash, err := adminkey.Hash(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
