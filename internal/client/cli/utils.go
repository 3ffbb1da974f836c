package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// resolvePassphrase returns p, or prompts for it on the terminal when p is
// "-".
func resolvePassphrase(p string) (string, error) {
	if p != "-" {
		return p, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("passphrase prompt needs a terminal")
	}

	fmt.Fprint(os.Stderr, "State passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}

// readNotes returns s, or the whole of r when s is "-".
func readNotes(s string, r io.Reader) (string, error) {
	if s != "-" {
		return s, nil
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
