package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"support-hub/errors"
)

//go:embed words/*.txt
var wordsFS embed.FS

// WordData carries the result of the loading process including metadata for logging.
type WordData struct {
	Words     []string
	Languages []string
}

// LoadEmbeddedWords parses the bundled per-language dictionaries
// (e.g. "en.txt" -> "en") into a unique word list.
func LoadEmbeddedWords() (*WordData, error) {
	return loadAll(wordsFS, "words")
}

func loadAll(f embed.FS, path string) (*WordData, error) {
	entries, err := fs.ReadDir(f, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := f.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// Scanner handles both \n and \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			uniqueWords[strings.ToLower(line)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	return &WordData{Words: words, Languages: languages}, nil
}
