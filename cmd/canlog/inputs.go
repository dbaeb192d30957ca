package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/banshee-data/canlog/internal/canerr"
	"github.com/banshee-data/canlog/internal/config"
	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/httputil"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// channelList is a repeatable channel number flag.
type channelList []uint16

func (l *channelList) String() string {
	parts := make([]string, len(*l))
	for i, c := range *l {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ",")
}

func (l *channelList) Set(v string) error {
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid channel %q", v)
	}
	*l = append(*l, uint16(n))
	return nil
}

// inputFlags are the flags shared by every command that reads a log.
type inputFlags struct {
	log      string
	dbcs     stringList
	channels channelList
	config   string
}

func (f *inputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.log, "log", "", "BLF log file or http(s) URL (required)")
	fs.Var(&f.dbcs, "dbc", "DBC file, repeat once per channel")
	fs.Var(&f.channels, "channel", "channel for the matching -dbc, repeat in order")
	fs.StringVar(&f.config, "config", "", "JSON configuration file")
}

// inputs is everything a command needs to decode a log.
type inputs struct {
	data     []byte
	size     int64
	source   string
	texts    []string
	channels []uint16
	cfg      *config.Config
}

func (in *inputs) tables() (dbc.ChannelTables, error) {
	return dbc.BuildChannelTables(in.texts, in.channels)
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func loadConfig(name string) (*config.Config, error) {
	if name == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(name)
}

// load reads the configuration, the definitions and the log named by f.
func (a *app) load(f *inputFlags) (*inputs, error) {
	if f.log == "" {
		return nil, fmt.Errorf("-log is required")
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return nil, err
	}
	in := &inputs{cfg: cfg, channels: f.channels}

	if in.texts, err = fsutil.ReadAll(a.fs, f.dbcs); err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	if len(in.channels) == 0 {
		for i := range in.texts {
			in.channels = append(in.channels, uint16(i+1))
		}
	}
	if len(in.channels) != len(in.texts) {
		return nil, canerr.Wrap(canerr.ErrInputShape, nil, "%d -dbc files but %d -channel values", len(in.texts), len(in.channels))
	}

	if httputil.IsURL(f.log) {
		in.data, err = httputil.Fetch(a.ctx, a.client, f.log, cfg.GetMaxUploadBytes())
		in.size = int64(len(in.data))
		in.source = path.Base(strings.SplitN(f.log, "?", 2)[0])
	} else {
		in.data, in.size, err = fsutil.ReadLimited(a.fs, f.log, cfg.GetMaxUploadBytes())
		in.source = path.Base(strings.ReplaceAll(f.log, "\\", "/"))
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return in, nil
}

// writeJSON prints v as indented JSON on stdout.
func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return canerr.Wrap(canerr.ErrSerialization, err, "encode output")
	}
	return nil
}
