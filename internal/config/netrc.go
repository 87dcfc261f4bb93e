package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// NetrcEntry represents credentials for a single machine in .netrc.
type NetrcEntry struct {
	Machine  string
	Login    string
	Password string
	Account  string
}

// netrcFile maps machine names to their entries. The "default" entry, if
// present, is stored under that name.
type netrcFile map[string]NetrcEntry

// parseNetrc reads a .netrc file. A missing file is not an error.
func parseNetrc(path string) (netrcFile, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("netrc: open: %w", err)
	}
	defer file.Close()

	entries, err := readNetrc(file)
	if err != nil {
		return nil, fmt.Errorf("netrc: scan: %w", err)
	}
	return entries, nil
}

// readNetrc tokenizes netrc content. Entries may span lines and several
// entries may share one line.
func readNetrc(r io.Reader) (netrcFile, error) {
	entries := make(netrcFile)
	var (
		current NetrcEntry
		open    bool
		pending string
	)

	flush := func() {
		if open && current.Machine != "" {
			entries[current.Machine] = current
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for _, token := range strings.Fields(line) {
			if pending != "" {
				switch pending {
				case "machine":
					current = NetrcEntry{Machine: token}
					open = true
				case "login":
					current.Login = token
				case "password":
					current.Password = token
				case "account":
					current.Account = token
				}
				pending = ""
				continue
			}

			switch token {
			case "machine":
				flush()
				open = false
				pending = token
			case "login", "password", "account":
				pending = token
			case "default":
				flush()
				current = NetrcEntry{Machine: "default"}
				open = true
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// lookup finds credentials for the site host, trying host:port, host and
// finally the default entry.
func (n netrcFile) lookup(site string) (NetrcEntry, bool) {
	if len(n) == 0 {
		return NetrcEntry{}, false
	}

	host := site
	if parsed, err := url.Parse(site); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	if entry, ok := n[host]; ok {
		return entry, true
	}
	if bare, _, found := strings.Cut(host, ":"); found {
		if entry, ok := n[bare]; ok {
			return entry, true
		}
	}
	entry, ok := n["default"]
	return entry, ok
}

// findNetrcPath checks NETRC first, then ~/.netrc.
func findNetrcPath() string {
	if path := os.Getenv("NETRC"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".netrc")
}

// applyNetrcDefaults fills in missing Jira email/api_token from .netrc.
func (c *Config) applyNetrcDefaults() error {
	creds := &c.Jira.ServiceCredentials
	if c.Jira.Site == "" || creds.Email != "" || creds.APIToken != "" || creds.OAuthToken != "" {
		return nil
	}

	path := findNetrcPath()
	if path == "" {
		return nil
	}

	entries, err := parseNetrc(path)
	if err != nil {
		return fmt.Errorf("config: load jira netrc: %w", err)
	}

	if entry, ok := entries.lookup(c.Jira.Site); ok && entry.Login != "" && entry.Password != "" {
		creds.Email = entry.Login
		creds.APIToken = entry.Password
	}
	return nil
}
