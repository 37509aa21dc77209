// Command lsmkvcli inspects and exercises an lsmkv database from the
// shell.
//
// Usage:
//
//	lsmkvcli --db=<path> <command> [args]
//
// Commands:
//
//	get <key>          Print the value stored for key
//	put <key> <value>  Store value under key
//	delete <key>        Remove key
//	scan <lo> <hi>      Print every entry with lo <= key <= hi
//	stats               Print per-level run counts and buffer pool hit rate
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/aalhour/lsmkv"
	"github.com/aalhour/lsmkv/internal/compaction"
	"github.com/aalhour/lsmkv/internal/run"
	"github.com/aalhour/lsmkv/internal/vfs"
)

var (
	dbPath = flag.String("db", "", "path to the database directory (required)")
	shape  = flag.String("shape", "array", "run shape for newly created databases: array|btree")
	policy = flag.String("policy", "tiered", "compaction policy for newly created databases: none|tiered|leveled|hybrid")
	help   = flag.Bool("help", false, "print usage")
)

func main() {
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		printUsage()
		return
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "error: --db is required")
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "get":
		err = cmdGet(args)
	case "put":
		err = cmdPut(args)
	case "delete":
		err = cmdDelete(args)
	case "scan":
		err = cmdScan(args)
	case "stats":
		err = cmdStats()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("lsmkvcli - lsmkv database inspection tool")
	fmt.Println()
	fmt.Println("Usage: lsmkvcli --db=<path> <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get <key>            print the value stored for key")
	fmt.Println("  put <key> <value>    store value under key")
	fmt.Println("  delete <key>         remove key")
	fmt.Println("  scan <lo> <hi>       print every entry with lo <= key <= hi")
	fmt.Println("  stats                print per-level run counts and buffer pool hit rate")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func openDB() (*lsmkv.DB, error) {
	opts := lsmkv.DefaultOptions()
	switch *shape {
	case "array":
		_ = opts.SetRunShape(run.Array)
	case "btree":
		_ = opts.SetRunShape(run.BTree)
	default:
		return nil, fmt.Errorf("unknown --shape %q", *shape)
	}
	kind, err := compaction.ParseKind(*policy)
	if err != nil {
		return nil, err
	}
	_ = opts.SetCompactionPolicy(kind)
	return lsmkv.Open(vfs.Default(), *dbPath, opts)
}

func parseKey(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func cmdGet(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lsmkvcli --db=<path> get <key>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer database.Close()

	value, ok, err := database.Get(key)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !ok {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(value)
	return nil
}

func cmdPut(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: lsmkvcli --db=<path> put <key> <value>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	value, err := parseKey(args[1])
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer database.Close()

	if err := database.Put(key, value); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	fmt.Println("OK")
	return nil
}

func cmdDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lsmkvcli --db=<path> delete <key>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer database.Close()

	if err := database.Delete(key); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Println("OK")
	return nil
}

func cmdScan(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: lsmkvcli --db=<path> scan <lo> <hi>")
	}
	lo, err := parseKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid lo: %w", err)
	}
	hi, err := parseKey(args[1])
	if err != nil {
		return fmt.Errorf("invalid hi: %w", err)
	}

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer database.Close()

	entries, err := database.Scan(lo, hi)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%d => %d\n", e.Key, e.Value)
	}
	fmt.Printf("\n(%d entries scanned)\n", len(entries))
	return nil
}

func cmdStats() error {
	database, err := openDB()
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer database.Close()

	stats, err := database.Stats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Printf("memtable: %d/%d entries\n", stats.MemtableEntries, stats.MemtableCapacity)
	fmt.Printf("buffer pool: enabled=%v %d/%d frames, hit rate=%.2f%%\n",
		stats.BufferPoolEnabled, stats.BufferPoolLen, stats.BufferPoolCapacity, stats.BufferPoolHitRate*100)
	fmt.Println("levels:")
	for _, l := range stats.Levels {
		fmt.Printf("  L%d: %d runs, %d bytes\n", l.Level, l.RunCount, l.ByteSize)
	}
	return nil
}
