// Package registry reads the user-maintained list of newsletter feed URLs.
package registry

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Source is one entry from the registry file: a feed URL plus the raw line
// it came from.
type Source struct {
	URL string
	Raw string
}

// Load reads a registry file: UTF-8 text, one feed URL per line. Blank lines,
// comment lines starting with '#', and lines that do not parse as absolute
// http(s) URLs are skipped. A missing or unreadable file is fatal.
func Load(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}
	defer f.Close()

	var sources []Source
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fmt.Fprintf(os.Stderr, "registry: skipping unparseable line %q\n", line)
			continue
		}
		sources = append(sources, Source{URL: line, Raw: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return sources, nil
}

// Normalize turns a bare Substack newsletter URL into its feed URL. URLs that
// already point at a feed (".rss" or "/feed" suffix) pass through unchanged;
// limit > 0 appends a post cap understood by Substack.
func Normalize(rawURL string, limit int) string {
	if strings.HasSuffix(rawURL, ".rss") || strings.HasSuffix(rawURL, "/feed") {
		return rawURL
	}
	feedURL := strings.TrimRight(rawURL, "/") + "/feed"
	if limit > 0 {
		feedURL = fmt.Sprintf("%s?limit=%d", feedURL, limit)
	}
	return feedURL
}
