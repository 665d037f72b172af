// Command inspect dumps delivery logs straight from a badger directory.
// Offline debugging tool: run it against a stopped engine's data dir.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"support-hub/domain"
)

func main() {
	dbPath := flag.String("db", "/tmp/support-hub/badger", "Path to badger DB")
	prefix := flag.String("prefix", "log:", "Prefix to scan (e.g. log:conversation:u1)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Cyan.Printf("Scanning %s with prefix %q\n", *dbPath, *prefix)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Sender", "Preview"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(value []byte) error {
				table.Append(toRow(key, value))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	color.Green.Printf("%d entries\n", rows)
}

func toRow(key string, value []byte) []string {
	var e domain.Entry
	if err := json.Unmarshal(value, &e); err != nil {
		return []string{key, "?", "", "", fmt.Sprintf("unreadable: %v", err)}
	}
	at := e.At().Format("2006-01-02 15:04:05")
	switch {
	case e.Kind == domain.EntryChat && e.Chat != nil:
		return []string{key, string(e.Kind), at,
			fmt.Sprintf("%s (%s)", e.Chat.SenderID, e.Chat.SenderRole),
			preview(e.Chat.Body)}
	case e.Kind == domain.EntryNotification && e.Notification != nil:
		return []string{key, string(e.Kind), at,
			string(e.Notification.Type),
			preview(e.Notification.Message)}
	default:
		return []string{key, string(e.Kind), "", "", "empty entry"}
	}
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}

func openDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path)
	options.Logger = nil
	options.ReadOnly = true
	return badger.Open(options)
}
