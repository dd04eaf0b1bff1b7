// StrikingDB CLI - Command line tool for working with StrikingDB volumes.
// This provides a simple interface for creating volumes and running
// one-shot operations against them.
//
// Usage examples:
//   strikingdb -file data.db -capacity 1073741824 create
//   strikingdb -file data.db put mykey "my value"
//   strikingdb -file data.db get mykey
//   strikingdb -file data.db delete mykey
//   strikingdb -file data.db stats

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/XavilPergis/StrikingDB/pkg/device"
	"github.com/XavilPergis/StrikingDB/pkg/errors"
	"github.com/XavilPergis/StrikingDB/pkg/logging"
	"github.com/XavilPergis/StrikingDB/pkg/storage"
)

// Exit codes by failure class, so scripts can branch on the outcome
// without parsing stderr.
const (
	exitOK         = 0
	exitUsage      = 1
	exitIO         = 2
	exitNotFound   = 3
	exitExists     = 4
	exitCorruption = 5
	exitFull       = 6
)

// cliConfig holds the flags shared by every subcommand.
type cliConfig struct {
	FilePath         string
	Capacity         uint64
	Strands          int
	ReadCacheSize    int
	ReclaimThreshold float64
	SyncOnPut        bool
	Reindex          bool
	Truncate         bool
	Verbose          bool
}

func main() {
	config, args := parseFlags()

	if config.Verbose {
		logging.SetGlobalLevel(logging.DEBUG)
	} else {
		logging.SetGlobalLevel(logging.WARN)
	}

	if len(args) < 1 {
		printUsage()
		os.Exit(exitUsage)
	}
	command := args[0]
	args = args[1:]

	if command == "help" {
		printUsage()
		return
	}
	if config.FilePath == "" {
		fmt.Fprintln(os.Stderr, "the -file flag is required")
		os.Exit(exitUsage)
	}

	var err error
	switch command {
	case "create":
		err = runCreate(config)
	case "put":
		err = withVolume(config, func(v *storage.Volume) error {
			if len(args) < 2 {
				fmt.Println("Usage: strikingdb put <key> <value>")
				os.Exit(exitUsage)
			}
			return v.Put([]byte(args[0]), []byte(args[1]))
		})
	case "insert":
		err = withVolume(config, func(v *storage.Volume) error {
			if len(args) < 2 {
				fmt.Println("Usage: strikingdb insert <key> <value>")
				os.Exit(exitUsage)
			}
			return v.Insert([]byte(args[0]), []byte(args[1]))
		})
	case "update":
		err = withVolume(config, func(v *storage.Volume) error {
			if len(args) < 2 {
				fmt.Println("Usage: strikingdb update <key> <value>")
				os.Exit(exitUsage)
			}
			return v.Update([]byte(args[0]), []byte(args[1]))
		})
	case "get":
		err = withVolume(config, func(v *storage.Volume) error {
			if len(args) < 1 {
				fmt.Println("Usage: strikingdb get <key>")
				os.Exit(exitUsage)
			}
			value, err := v.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			os.Stdout.Write(value)
			fmt.Println()
			return nil
		})
	case "delete":
		err = withVolume(config, func(v *storage.Volume) error {
			if len(args) < 1 {
				fmt.Println("Usage: strikingdb delete <key>")
				os.Exit(exitUsage)
			}
			return v.Delete([]byte(args[0]))
		})
	case "reclaim":
		err = withVolume(config, func(v *storage.Volume) error {
			total := uint64(0)
			for i := 0; i < v.Stats().StrandCount; i++ {
				trimmed, err := v.ReclaimPass(uint16(i))
				if err != nil {
					return err
				}
				total += trimmed
			}
			fmt.Printf("reclaimed %d bytes\n", total)
			return nil
		})
	case "stats":
		err = withVolume(config, func(v *storage.Volume) error {
			printStats(v.Stats())
			return nil
		})
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "strikingdb: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// parseFlags parses command line arguments and returns config and remaining args.
func parseFlags() (*cliConfig, []string) {
	var (
		filePath  = flag.String("file", "", "Path to the volume file (required)")
		capacity  = flag.Uint64("capacity", 64*1024*1024, "Volume capacity in bytes (create only)")
		strands   = flag.Int("strands", 8, "Number of strands (create only)")
		cacheSize = flag.Int("cache-size", 512, "Read cache capacity in entries, 0 disables")
		reclaim   = flag.Float64("reclaim-threshold", 0.5, "Dead-item ratio that triggers reclamation, 0 disables")
		syncPut   = flag.Bool("sync", false, "Sync the device after every write")
		reindex   = flag.Bool("reindex", false, "Ignore the checkpoint and rebuild the index by scan")
		truncate  = flag.Bool("truncate", false, "Discard existing contents when creating")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)

	flag.Parse()

	return &cliConfig{
		FilePath:         *filePath,
		Capacity:         *capacity,
		Strands:          *strands,
		ReadCacheSize:    *cacheSize,
		ReclaimThreshold: *reclaim,
		SyncOnPut:        *syncPut,
		Reindex:          *reindex,
		Truncate:         *truncate,
		Verbose:          *verbose,
	}, flag.Args()
}

// volumeConfig converts the CLI flags into the storage configuration.
func (c *cliConfig) volumeConfig() *storage.VolumeConfig {
	return &storage.VolumeConfig{
		StrandCount:      c.Strands,
		ReadCacheSize:    c.ReadCacheSize,
		ReclaimThreshold: c.ReclaimThreshold,
		Truncate:         c.Truncate,
		Reindex:          c.Reindex,
		SyncOnPut:        c.SyncOnPut,
	}
}

// runCreate formats a new volume file and closes it cleanly.
func runCreate(config *cliConfig) error {
	dev, err := device.CreateFile(config.FilePath, config.Capacity)
	if err != nil {
		return err
	}

	volume, err := storage.Create(dev, config.volumeConfig())
	if err != nil {
		dev.Close()
		return err
	}
	return volume.Close()
}

// withVolume opens the volume, runs the operation, and always closes.
func withVolume(config *cliConfig, op func(*storage.Volume) error) error {
	dev, err := device.OpenFile(config.FilePath)
	if err != nil {
		return err
	}

	volume, err := storage.Open(dev, config.volumeConfig())
	if err != nil {
		dev.Close()
		return err
	}

	opErr := op(volume)
	closeErr := volume.Close()
	if opErr != nil {
		return opErr
	}
	return closeErr
}

// printStats renders the aggregate statistics view.
func printStats(stats storage.VolumeStats) {
	fmt.Printf("Instance:      %s\n", stats.InstanceID)
	fmt.Printf("Strands:       %d\n", stats.StrandCount)
	fmt.Printf("Keys:          %d\n", stats.Keys)
	fmt.Printf("Dead records:  %d\n", stats.Deleted)
	fmt.Printf("Uptime:        %s\n", stats.Uptime.Round(time.Millisecond))
	fmt.Println()
	fmt.Printf("%-8s %12s %12s %12s %8s %8s\n",
		"strand", "read", "written", "trimmed", "valid", "dead")
	for i, s := range stats.PerStrand {
		fmt.Printf("%-8d %12d %12d %12d %8d %8d\n",
			i, s.ReadBytes, s.WrittenBytes, s.TrimmedBytes, s.ValidItems, s.DeletedItems)
	}
	t := stats.Totals
	fmt.Printf("%-8s %12d %12d %12d %8d %8d\n",
		"total", t.ReadBytes, t.WrittenBytes, t.TrimmedBytes, t.ValidItems, t.DeletedItems)
}

// exitCode maps an operation error onto the CLI's exit code classes.
func exitCode(err error) int {
	switch {
	case err == storage.ErrKeyNotFound || errors.IsCode(err, errors.ErrCodeKeyNotFound):
		return exitNotFound
	case err == storage.ErrKeyExists || errors.IsCode(err, errors.ErrCodeKeyExists):
		return exitExists
	case errors.IsCode(err, errors.ErrCodeSignatureMismatch),
		errors.IsCode(err, errors.ErrCodeIncompatibleVersion),
		errors.IsCode(err, errors.ErrCodeCorruptRecord),
		errors.IsCode(err, errors.ErrCodeCorruptCheckpoint):
		return exitCorruption
	case err == storage.ErrOutOfSpace || errors.IsCode(err, errors.ErrCodeStrandFull),
		errors.IsCode(err, errors.ErrCodeNoSpaceForCheckpoint):
		return exitFull
	default:
		return exitIO
	}
}

func printUsage() {
	fmt.Println(`StrikingDB - persistent key/value store for solid state drives

Usage: strikingdb -file <path> [flags] <command> [args]

Commands:
  create               Format a new volume
  put <key> <value>    Store a value, replacing any existing one
  insert <key> <value> Store a value only if the key is absent
  update <key> <value> Store a value only if the key is present
  get <key>            Print the value for a key
  delete <key>         Remove a key
  reclaim              Trim dead records on every strand
  stats                Print volume statistics
  help                 Show this message

Flags:`)
	flag.PrintDefaults()
}
