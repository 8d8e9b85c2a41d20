// Command flashkv is a line-oriented shell over a flashkv database,
// mostly useful for poking at a directory by hand while developing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Priyanshu23/flashkv"
)

func main() {
	dir := flag.String("dir", "", "database directory (required)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "flashkv: -dir is required")
		os.Exit(1)
	}

	db, err := flashkv.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flashkv: open %s: %v\n", *dir, err)
		os.Exit(1)
	}
	defer db.Close()

	runShell(db, os.Stdin, os.Stdout)
}

// runShell reads one command per line: "put key value", "get key" or
// "del key". Unrecognised input is reported and skipped.
func runShell(db *flashkv.DB, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		if len(fields) == 0 || fields[0] == "" {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "put":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: put key value")
				continue
			}
			if err := db.Put([]byte(fields[1]), []byte(fields[2])); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}

		case "get":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: get key")
				continue
			}
			value, found, err := db.Get([]byte(fields[1]))
			switch {
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			case !found:
				fmt.Fprintln(out, "(not found)")
			default:
				fmt.Fprintln(out, string(value))
			}

		case "del":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: del key")
				continue
			}
			if err := db.Delete([]byte(fields[1])); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}

		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}
