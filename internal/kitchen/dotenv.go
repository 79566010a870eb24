package kitchen

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ParseDotEnv reads KEY=VALUE lines. Comments, blank lines and lines without
// '=' are skipped; an "export " prefix and surrounding quotes are dropped.
func ParseDotEnv(r io.Reader) (map[string]string, error) {
	vars := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			vars[key] = strings.Trim(strings.TrimSpace(val), `"'`)
		}
	}
	return vars, scanner.Err()
}

// LoadDotEnv exports the variables of a .env file that are not already set.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	vars, err := ParseDotEnv(f)
	if err != nil {
		return err
	}
	for key, val := range vars {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	return nil
}
