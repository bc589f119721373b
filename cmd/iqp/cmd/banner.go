package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ___    _____    ___                        ___          _
 |_ _|__|_   _|  / _ \ _  _ ___ _ _ _  _    | _ \_ _ ___ | |__  ___
  | |/ _ \| |   | (_) | || / -_) '_| || |   |  _/ '_/ _ \| '_ \/ -_)
 |___\___/|_|    \__\_\\_,_\___|_|  \_, |   |_| |_| \___/|_.__/\___|
                                    |__/
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Read-only SQL for IoT fleets - Version %s\x1b[0m\n\n", Version)
}
