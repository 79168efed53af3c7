package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.New(os.Stdout, "[trackplan] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatalf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "plan":
		err = planCmd(os.Args[2:], logger)
	case "route":
		err = routeCmd(os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
usage:
  trackplan plan  -from x,z,DIR -to x,z,DIR[;x,z,DIR...] [-layout path | -snapshot path] [-apply] [-out snap] [-export layout]
  trackplan route -from x,z,TYPE,DIR -to x,z,TYPE,DIR[;...] [-layout path | -snapshot path]`))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
