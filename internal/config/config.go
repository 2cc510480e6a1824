// Package config builds and validates the Config record spec.md §3/§6
// describes, from CLI flags plus an optional YAML user-list file. The
// validation style (duplicate-detection maps, range checks, descriptive
// fmt.Errorf wrapping) follows the teacher's LoadConfig.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"socksd/internal/coordinator"
)

// Config is the validated, external-CLI-supplied configuration record.
type Config struct {
	BindIP      net.IP
	BindPort    int
	EnableV4    bool
	EnableV5    bool
	RequireAuth bool
	Users       []coordinator.User

	MetricsAddr string
}

// usersFile is the on-disk shape for --users-file, kept separate from
// coordinator.User so the YAML tags don't leak into the domain type.
type usersFile struct {
	Users []struct {
		User string `yaml:"user"`
		Pass string `yaml:"pass"`
	} `yaml:"users"`
}

// LoadUsersFile reads a YAML user list, following the teacher's
// LoadConfig's read-then-unmarshal shape.
func LoadUsersFile(path string) ([]coordinator.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read users file: %w", err)
	}

	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("config: parse users file: %w", err)
	}

	users := make([]coordinator.User, 0, len(uf.Users))
	for i, u := range uf.Users {
		if u.User == "" {
			return nil, fmt.Errorf("config: users file entry %d: empty user", i)
		}
		users = append(users, coordinator.User{Name: u.User, Pass: u.Pass})
	}
	return users, nil
}

// ParseUserFlag parses one "--users user:pass" value.
func ParseUserFlag(s string) (coordinator.User, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return coordinator.User{}, fmt.Errorf("config: invalid --users value %q, expected user:pass", s)
	}
	return coordinator.User{Name: parts[0], Pass: parts[1]}, nil
}

// Build validates the raw CLI input and assembles a Config, merging and
// de-duplicating users from --users flags and an optional --users-file.
func Build(ip string, port int, enableV4, enableV5, requireAuth bool, userFlags []string, usersFilePath, metricsAddr string) (*Config, error) {
	if !enableV4 && !enableV5 {
		return nil, fmt.Errorf("config: at least one of --socks4/--socks5 must be enabled")
	}

	bindIP := net.ParseIP(ip)
	if bindIP == nil {
		return nil, fmt.Errorf("config: invalid --ip %q", ip)
	}

	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("config: --port %d out of range (1-65535)", port)
	}

	var users []coordinator.User
	seen := make(map[coordinator.User]struct{})

	addUser := func(u coordinator.User) error {
		if _, dup := seen[u]; dup {
			return nil
		}
		seen[u] = struct{}{}
		users = append(users, u)
		return nil
	}

	for _, raw := range userFlags {
		u, err := ParseUserFlag(raw)
		if err != nil {
			return nil, err
		}
		if err := addUser(u); err != nil {
			return nil, err
		}
	}

	if usersFilePath != "" {
		fileUsers, err := LoadUsersFile(usersFilePath)
		if err != nil {
			return nil, err
		}
		for _, u := range fileUsers {
			if err := addUser(u); err != nil {
				return nil, err
			}
		}
	}

	if requireAuth {
		if !enableV5 {
			return nil, fmt.Errorf("config: --auth requires --socks5")
		}
		if len(users) == 0 {
			return nil, fmt.Errorf("config: --auth requires at least one user (--users or --users-file)")
		}
	}

	return &Config{
		BindIP:      bindIP,
		BindPort:    port,
		EnableV4:    enableV4,
		EnableV5:    enableV5,
		RequireAuth: requireAuth,
		Users:       users,
		MetricsAddr: metricsAddr,
	}, nil
}
