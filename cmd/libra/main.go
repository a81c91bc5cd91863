package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"libra/cmd/internal/app"
	"libra/cmd/security/password"
	"libra/cmd/security/token"

	"golang.org/x/term"
)

const usage = `usage: libra [command]

commands:
  serve           run the HTTP server (default)
  hash-password   read a password from stdin and print its stored form
  temp-password   print a one-time password
`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = app.Run()
	case "hash-password":
		err = hashPassword(os.Stdin, os.Stdout, os.Stderr)
	case "temp-password":
		err = tempPassword(os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func hashPassword(in *os.File, out, prompt io.Writer) error {
	cfg, err := password.FromEnv()
	if err != nil {
		return err
	}

	plain, err := readSecret(in, prompt)
	if err != nil {
		return err
	}
	if err := cfg.Validate(plain); err != nil {
		return fmt.Errorf("password rejected: %w", err)
	}

	hash, err := cfg.Hash(plain)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// readSecret reads without echo on a terminal and a single line otherwise.
func readSecret(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd()) // #nosec G115 -- file descriptors fit in int.
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

func tempPassword(out io.Writer) error {
	cfg, err := token.FromEnv()
	if err != nil {
		return err
	}
	pw, err := token.NewGenerator(cfg).TemporaryPassword()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, pw)
	return err
}
