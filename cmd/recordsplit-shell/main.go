package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/recordsplit/recordsplit/pkg/budget"
	"github.com/recordsplit/recordsplit/pkg/common/log"
	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/memkv"
	"github.com/recordsplit/recordsplit/pkg/recordstore"
	"github.com/recordsplit/recordsplit/pkg/stats"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem("BEGIN",
		readline.PcItem("READONLY"),
	),
	readline.PcItem("COMMIT"),
	readline.PcItem("ROLLBACK"),
	readline.PcItem("SAVE"),
	readline.PcItem("READ"),
	readline.PcItem("EXISTS"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
)

const helpText = `
recordsplit-shell - interactive console over the record split codec

Commands:
  .help                   - Show this help message
  .exit                   - Exit the program
  .stats                  - Show operation counters

  BEGIN [READONLY]        - Begin a transaction (default: read-write)
  COMMIT                  - Commit the current transaction
  ROLLBACK                - Discard the current transaction's staged writes

  SAVE prefix value       - Save a record, splitting it if it exceeds the chunk size
  READ prefix             - Reassemble and print the record stored under prefix
  EXISTS prefix           - Report whether a record is stored under prefix
  DELETE prefix           - Delete the record stored under prefix
  SCAN [prefix]           - Stream every record (or every record under prefix)
`

func main() {
	fmt.Println("recordsplit-shell version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	store := memkv.New()
	metrics := stats.NewAtomicCollector()
	writer := recordstore.NewWriterWithMetrics(metrics)
	readerOpts := recordstore.ReaderOptions{SplitLongRecords: true}

	ctx := context.Background()
	var tx kvs.Transaction
	var readOnly bool

	historyFile := filepath.Join(os.TempDir(), ".recordsplit_shell_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rs> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		log.Fatal("initializing readline: %s", err)
	}
	defer rl.Close()

	for {
		prompt := "rs> "
		if tx != nil {
			if readOnly {
				prompt = "rs[RO]> "
			} else {
				prompt = "rs[RW]> "
			}
		}
		rl.SetPrompt(prompt)

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		if strings.HasPrefix(cmd, ".") {
			switch strings.ToLower(cmd) {
			case ".help":
				fmt.Print(helpText)

			case ".exit":
				fmt.Println("Goodbye!")
				return

			case ".stats":
				printStats(metrics.GetStats())

			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
			continue
		}

		switch cmd {
		case "BEGIN":
			if tx != nil {
				fmt.Println("Error: transaction already in progress")
				continue
			}
			tx, err = store.BeginTransaction(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error beginning transaction: %s\n", err)
				continue
			}
			readOnly = len(parts) >= 2 && strings.ToUpper(parts[1]) == "READONLY"
			fmt.Println("Transaction started")

		case "COMMIT":
			if tx == nil {
				fmt.Println("Error: no transaction in progress")
				continue
			}
			start := time.Now()
			if err := tx.Commit(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error committing transaction: %s\n", err)
			} else {
				fmt.Printf("Transaction committed (%.2f ms)\n", float64(time.Since(start).Microseconds())/1000.0)
				metrics.TrackOperation(stats.OpCommit)
			}
			tx = nil
			readOnly = false

		case "ROLLBACK":
			if tx == nil {
				fmt.Println("Error: no transaction in progress")
				continue
			}
			fmt.Println("Transaction discarded")
			tx = nil
			readOnly = false

		case "SAVE":
			if len(parts) < 3 {
				fmt.Println("Error: SAVE requires prefix and value arguments")
				continue
			}
			t, auto, derr := txOrAuto(ctx, store, tx, readOnly, "SAVE")
			if derr != nil {
				fmt.Fprintln(os.Stderr, derr)
				continue
			}
			prefix := []byte(parts[1])
			value := []byte(strings.Join(parts[2:], " "))
			result, serr := writer.Save(ctx, t, prefix, value, recordstore.NoVersion, recordstore.SaveOptions{SplitLongRecords: true})
			if serr != nil {
				fmt.Fprintf(os.Stderr, "Error saving record: %s\n", serr)
			} else {
				fmt.Printf("Saved %d bytes across %d entries\n", result.Sizes.TotalBytes(), result.Sizes.KeyCount)
			}
			maybeAutoCommit(ctx, t, auto)

		case "READ":
			if len(parts) < 2 {
				fmt.Println("Error: READ requires a prefix argument")
				continue
			}
			t, auto, derr := txOrAuto(ctx, store, tx, readOnly, "READ")
			if derr != nil {
				fmt.Fprintln(os.Stderr, derr)
				continue
			}
			reader := recordstore.NewSingleKeyReaderWithMetrics(readerOpts, metrics)
			rec, rerr := reader.Read(ctx, t, []byte(parts[1]))
			if rerr != nil {
				fmt.Fprintf(os.Stderr, "Error reading record: %s\n", rerr)
			} else if rec == nil {
				fmt.Println("Record not found")
			} else {
				fmt.Printf("%s\n", rec.Value)
			}
			maybeAutoCommit(ctx, t, auto)

		case "EXISTS":
			if len(parts) < 2 {
				fmt.Println("Error: EXISTS requires a prefix argument")
				continue
			}
			t, auto, derr := txOrAuto(ctx, store, tx, readOnly, "EXISTS")
			if derr != nil {
				fmt.Fprintln(os.Stderr, derr)
				continue
			}
			reader := recordstore.NewSingleKeyReaderWithMetrics(readerOpts, metrics)
			ok, eerr := reader.Exists(ctx, t, []byte(parts[1]))
			if eerr != nil {
				fmt.Fprintf(os.Stderr, "Error checking record: %s\n", eerr)
			} else {
				fmt.Println(ok)
			}
			maybeAutoCommit(ctx, t, auto)

		case "DELETE":
			if len(parts) < 2 {
				fmt.Println("Error: DELETE requires a prefix argument")
				continue
			}
			t, auto, derr := txOrAuto(ctx, store, tx, readOnly, "DELETE")
			if derr != nil {
				fmt.Fprintln(os.Stderr, derr)
				continue
			}
			_, derr2 := writer.Delete(ctx, t, []byte(parts[1]), recordstore.DeleteOptions{SplitLongRecords: true})
			if derr2 != nil {
				fmt.Fprintf(os.Stderr, "Error deleting record: %s\n", derr2)
			} else {
				fmt.Println("Record deleted")
			}
			maybeAutoCommit(ctx, t, auto)

		case "SCAN":
			t, auto, derr := txOrAuto(ctx, store, tx, readOnly, "SCAN")
			if derr != nil {
				fmt.Fprintln(os.Stderr, derr)
				continue
			}
			var begin, end []byte
			if len(parts) >= 2 {
				begin = []byte(parts[1])
				end = recordstore.RangeEnd(begin)
			} else {
				begin = []byte{}
				end = wideUpperBound
			}
			cur := t.GetRange(ctx, begin, end, false, -1)
			reader := recordstore.NewStreamingReaderWithMetrics(t, cur, readerOpts, false, budget.New(0, 0), metrics)
			count := 0
			for {
				rec, nerr := reader.Next(ctx)
				if nerr != nil {
					fmt.Fprintf(os.Stderr, "Error scanning: %s\n", nerr)
					break
				}
				if rec == nil {
					break
				}
				fmt.Printf("%s: %s\n", rec.Prefix, rec.Value)
				count++
			}
			fmt.Printf("%d records found\n", count)
			maybeAutoCommit(ctx, t, auto)

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

// wideUpperBound bounds an unprefixed SCAN; it is wider than any prefix
// this shell will be used to type in by hand.
var wideUpperBound = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// txOrAuto returns the active transaction if one is in progress, or opens
// and returns a throwaway one for a single command, reporting auto=true so
// the caller knows to commit it immediately afterward.
func txOrAuto(ctx context.Context, store *memkv.Store, tx kvs.Transaction, readOnly bool, cmd string) (kvs.Transaction, bool, error) {
	if tx != nil {
		if readOnly && (cmd == "SAVE" || cmd == "DELETE") {
			return nil, false, fmt.Errorf("Error: cannot %s in a read-only transaction", cmd)
		}
		return tx, false, nil
	}
	t, err := store.BeginTransaction(ctx)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func maybeAutoCommit(ctx context.Context, tx kvs.Transaction, auto bool) {
	if !auto {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error committing: %s\n", err)
	}
}

func printStats(s map[string]interface{}) {
	fmt.Println("Operation counters:")
	for _, key := range []string{"save_ops", "read_ops", "exists_ops", "delete_ops", "stream_next_ops", "commit_ops"} {
		if v, ok := s[key]; ok {
			fmt.Printf("  %s: %v\n", key, v)
		}
	}
	fmt.Printf("  total_bytes_read: %v\n", s["total_bytes_read"])
	fmt.Printf("  total_bytes_written: %v\n", s["total_bytes_written"])
	fmt.Printf("  total_chunks: %v\n", s["total_chunks"])
}
