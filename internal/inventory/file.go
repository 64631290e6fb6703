package inventory

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
)

// LoadHostList parses an INI-style host list file into a MemoryInventory.
//
// The format is one host per line, with optional [group] section headers.
// Hosts above the first header are ungrouped but still part of "all". Blank
// lines and lines starting with '#' or ';' are ignored; an inline comment
// after a hostname is stripped.
func LoadHostList(path string) (*MemoryInventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("unable to open host list %s", path), err)
	}
	defer f.Close()

	var hosts []string
	groups := make(map[string][]string)
	currentGroup := ""

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("%s:%d: malformed group header %q", path, lineNo, line), nil)
			}
			currentGroup = strings.TrimSpace(line[1 : len(line)-1])
			if currentGroup == "" || currentGroup == "all" || currentGroup == "*" {
				return nil, droverrors.NewConfigError(
					fmt.Sprintf("%s:%d: reserved or empty group name %q", path, lineNo, line), nil)
			}
			if _, exists := groups[currentGroup]; !exists {
				groups[currentGroup] = nil
			}
			continue
		}
		// Strip trailing comments and any key=value extras after the name.
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}
		host := strings.Fields(line)[0]
		// Every host joins the universe in file order; the group map only
		// records membership.
		hosts = append(hosts, host)
		if currentGroup != "" {
			groups[currentGroup] = append(groups[currentGroup], host)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, droverrors.NewConfigError(fmt.Sprintf("error reading host list %s", path), err)
	}

	return NewMemoryInventory(hosts, groups), nil
}
