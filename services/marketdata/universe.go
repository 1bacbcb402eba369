package marketdata

import (
	"bufio"
	"os"
	"strings"
)

// LoadUniverse reads a ticker list file: one symbol per line, blank lines
// and #-comments ignored.
func LoadUniverse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t := strings.ToUpper(line)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, sc.Err()
}

// ApplyLimit caps the universe at n tickers; n <= 0 means no cap.
func ApplyLimit(tickers []string, n int) []string {
	if n <= 0 || n >= len(tickers) {
		return tickers
	}
	return tickers[:n]
}
