package policy

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	E "github.com/sagernet/sing/common/exceptions"
)

// readDomainList parses one domain per line; blank lines and lines
// starting with '#' are skipped.
func readDomainList(reader io.Reader) ([]string, error) {
	bufReader := bufio.NewReader(reader)
	var domains []string
	for lineNumber := 1; ; lineNumber++ {
		line, err := bufReader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		domain := strings.TrimSpace(line)
		if domain != "" && domain[0] != '#' {
			if strings.ContainsAny(domain, " \t/:") {
				return nil, E.New("invalid domain at line ", lineNumber, ": ", domain)
			}
			domains = append(domains, normalizeHostname(domain))
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return domains, nil
}

func readDomainListFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	domains, err := readDomainList(file)
	if err != nil {
		return nil, E.Cause(err, "read domain list at ", path)
	}
	return domains, nil
}
