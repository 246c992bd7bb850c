// Command constructos resolves ConstructOS sign-in state from a terminal.
// It signs in with a demo role, a username and password, or the Azure AD
// device flow, and reports what the gateway would see for that user.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
