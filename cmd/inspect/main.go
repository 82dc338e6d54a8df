// Command inspect dumps the relay's Badger store as a table, or serves
// it as a browsable HTML page with -serve. Development aid.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"dm-relay/internal"
	"dm-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, undelivered:, user:, uid:)")
	serve := flag.Bool("serve", false, "Serve the HTML inspector instead of printing a table")
	port := flag.Int("port", 8089, "Inspector port, used with -serve")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *serve {
		internal.StartDebugServer(db, *port, rowFor, nil)
		fmt.Printf("Inspector running on http://localhost:%d/inspect?prefix=%s\n", *port, *prefix)
		select {}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Parties", "Detail"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				row := rowFor(string(item.Key()), v)
				table.Append([]string{row.Key, row.Kind, row.Timestamp, row.Parties, row.Detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// rowFor decodes one key/value pair according to its key namespace.
func rowFor(key string, val []byte) internal.InspectRow {
	row := internal.InspectRow{Key: key, Kind: "RAW", Timestamp: "--:--:--",
		Detail: fmt.Sprintf("Size: %d bytes", len(val))}

	switch {
	case strings.HasPrefix(key, "msg:"):
		message, err := repositories.DecodeMessage(val)
		if err != nil {
			row.Detail = "decode error: " + err.Error()
			return row
		}
		row.Kind = "MESSAGE"
		row.Timestamp = message.At.Format("15:04:05")
		row.Parties = fmt.Sprintf("%s > %s", message.Sender, message.Recipient)
		state := color.Yellow.Render("pending")
		if message.Delivered {
			state = color.Green.Render("delivered")
		}
		row.Detail = fmt.Sprintf("[%s] %s", state, message.Content)
	case strings.HasPrefix(key, "undelivered:"):
		row.Kind = "INDEX"
		row.Detail = "-> " + string(val)
	case strings.HasPrefix(key, "user:"):
		user, err := repositories.DecodeUser(val)
		if err != nil {
			row.Detail = "decode error: " + err.Error()
			return row
		}
		row.Kind = "USER"
		row.Timestamp = user.CreatedAt.Format("2006-01-02 15:04")
		row.Parties = user.Username
		displayID := user.ID
		if len(displayID) > 8 {
			displayID = displayID[:8]
		}
		row.Detail = "id " + displayID
	case strings.HasPrefix(key, "uid:"):
		row.Kind = "INDEX"
		row.Detail = "-> " + string(val)
	}
	return row
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty value log needs one writable open to truncate.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
