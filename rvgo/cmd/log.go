package cmd

import (
	"fmt"
	"io"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvsandbox/rvgo/config"
)

func Logger(w io.Writer, lvl log.Lvl) log.Logger {
	return oplog.NewLogger(w, oplog.CLIConfig{Level: lvl, Format: oplog.FormatLogFmt})
}

// ConfiguredLogger builds the logger described by the log section of the config.
func ConfiguredLogger(w io.Writer, cfg config.LogConfig) (log.Logger, error) {
	lvl, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := config.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return oplog.NewLogger(w, oplog.CLIConfig{Level: lvl, Format: format}), nil
}

// LoggingWriter is a simple util to wrap a logger,
// and expose an io Writer interface,
// for the program running within the VM to write to.
type LoggingWriter struct {
	Name string
	Log  log.Logger
}

func logAsText(b string) bool {
	for _, c := range b {
		if (c < 0x20 || c >= 0x7F) && (c != '\n' && c != '\t') {
			return false
		}
	}
	return true
}

func (lw *LoggingWriter) Write(b []byte) (int, error) {
	t := string(b)
	if logAsText(t) {
		lw.Log.Info("", "name", lw.Name, "text", t)
	} else {
		lw.Log.Info("", "name", lw.Name, "data", hexutil.Bytes(b))
	}
	return len(b), nil
}

// HexU32 to lazy-format integer attributes for logging
type HexU32 uint32

func (v HexU32) String() string {
	return fmt.Sprintf("%08x", uint32(v))
}

func (v HexU32) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type HexU64 uint64

func (v HexU64) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

func (v HexU64) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
