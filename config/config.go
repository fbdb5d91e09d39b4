package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/DataDog/dd-trace-go/contrib/database/sql/parsedsn"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/container"
)

const (
	EnvVarPrefix      = "UNFLATE"
	DefaultConfigFile = "unflate.toml"

	CommandExtract = "extract"
	CommandServe   = "serve"

	DefaultLogLevel           = "info"
	DefaultNumWorkers         = 2
	DefaultCheckpointInterval = duration(5 * time.Second)
	DefaultCheckpointFile     = "checkpoint.json"
	DefaultDestinationType    = "file"
	DefaultDestinationDir     = "out"
	DefaultDestinationTable   = "payloads"
	DefaultListenAddress      = ":8080"
	DefaultMaxBodySize        = 16 << 20
	DefaultCacheTTL           = duration(10 * time.Minute)

	MinNumWorkers         = 1
	MaxNumWorkers         = 100
	MinCheckpointInterval = duration(1 * time.Millisecond)
	MaxCheckpointInterval = duration(1 * time.Hour)
	MaxSkipBytes          = 1 << 16
	MinCacheTTL           = duration(1 * time.Second)
	MaxCacheTTL           = duration(7 * 24 * time.Hour)
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validDestinationTypes = map[string]struct{}{
		"file":     {},
		"postgres": {},
		"mysql":    {},
	}

	validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Config      *TOMLConfig      `toml:"config"`
	Source      *TOMLSource      `toml:"source"`
	Destination *TOMLDestination `toml:"destination"`
	Server      *TOMLServer      `toml:"server"`
}

type TOMLConfig struct {
	LogLevel             string   `toml:"log_level"`
	NumWorkers           int      `toml:"num_workers"`
	CheckpointFile       string   `toml:"checkpoint_file"`
	CheckpointInterval   duration `toml:"checkpoint_interval"`
	DisableCheckpointing bool     `toml:"disable_checkpointing"`
	DisableDupecheck     bool     `toml:"disable_dupecheck"`
	MaxOutputSize        int      `toml:"max_output_size"`
	SentryDSN            string   `toml:"sentry_dsn"`
}

type TOMLSource struct {
	Encoding  string `toml:"encoding"`
	Container string `toml:"container"`
	SkipBytes int    `toml:"skip_bytes"`
}

type TOMLDestination struct {
	Type   string `toml:"type"`
	Dir    string `toml:"dir"`
	Suffix string `toml:"suffix"`
	DSN    string `toml:"dsn"`
	Table  string `toml:"table"`
}

type TOMLServer struct {
	ListenAddress string   `toml:"listen_address"`
	MaxBodySize   int64    `toml:"max_body_size"`
	RedisAddress  string   `toml:"redis_address"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	CacheTTL      duration `toml:"cache_ttl"`
}

type CLI struct {
	ConfigFile   string `kong:"name='config',help='Path to the TOML config file',type='path',default='unflate.toml',short='c'"`
	DisableColor bool   `kong:"help='Disable color output',short='C'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Quiet   bool             `kong:"help='Disable showing pre/post output',short='q'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	Extract ExtractCmd `kong:"cmd,help='Decompress one or more files'"`
	Serve   ServeCmd   `kong:"cmd,help='Run the HTTP decompression service'"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

type ExtractCmd struct {
	Files         []string `kong:"arg,help='Compressed input files'"`
	DryRun        bool     `kong:"help='Decode but do not write output',short='n'"`
	DisableResume bool     `kong:"help='Disable resuming from checkpoint',short='R'"`
	FailFast      bool     `kong:"help='Stop at the first file that fails to decode',short='f'"`
	OutputDir     string   `kong:"help='Override destination.dir',short='o'"`
	Encoding      string   `kong:"help='Override source.encoding (raw, base64)',short='e'"`
	Container     string   `kong:"help='Override source.container (auto, raw, zlib, gzip)',short='t'"`
	SkipBytes     int      `kong:"help='Override source.skip_bytes',default='-1',short='s'"`
}

type ServeCmd struct {
	Listen string `kong:"help='Override server.listen_address',short='l'"`
}

// Command returns the top-level command selected on the command line.
func (c *CLI) Command() string {
	if c == nil || c.Ctx == nil {
		return ""
	}

	fields := strings.Fields(c.Ctx.Command())
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

func NewConfig() (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	cfg := &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}

	applyCLIOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	return cfg, nil
}

// New builds a Config from an already-parsed TOML document, applying
// defaults. Used by callers that do not go through the command line.
func New(data []byte) (*Config, error) {
	tomlConfig, err := parseTOML(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CLI:  &CLI{},
		TOML: tomlConfig,
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	return cfg, nil
}

func applyCLIOverrides(c *Config) {
	e := c.CLI.Extract

	if e.OutputDir != "" {
		c.TOML.Destination.Dir = e.OutputDir
	}

	if e.Encoding != "" {
		c.TOML.Source.Encoding = e.Encoding
	}

	if e.Container != "" {
		c.TOML.Source.Container = e.Container
	}

	if e.SkipBytes >= 0 {
		c.TOML.Source.SkipBytes = e.SkipBytes
	}

	if c.CLI.Serve.Listen != "" {
		c.TOML.Server.ListenAddress = c.CLI.Serve.Listen
	}
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Config == nil {
		t.Config = &TOMLConfig{}
	}

	if t.Source == nil {
		t.Source = &TOMLSource{}
	}

	if t.Destination == nil {
		t.Destination = &TOMLDestination{}
	}

	if t.Server == nil {
		t.Server = &TOMLServer{}
	}

	// Set defaults for [config]
	if t.Config.LogLevel == "" {
		t.Config.LogLevel = DefaultLogLevel
	}

	if t.Config.NumWorkers == 0 {
		t.Config.NumWorkers = DefaultNumWorkers
	}

	if t.Config.CheckpointInterval == 0 {
		t.Config.CheckpointInterval = DefaultCheckpointInterval
	}

	if t.Config.CheckpointFile == "" {
		t.Config.CheckpointFile = DefaultCheckpointFile
	}

	// Set defaults for [source]
	if t.Source.Encoding == "" {
		t.Source.Encoding = string(container.EncodingRaw)
	}

	if t.Source.Container == "" {
		t.Source.Container = string(container.FormatAuto)
	}

	// Set defaults for [destination]
	if t.Destination.Type == "" {
		t.Destination.Type = DefaultDestinationType
	}

	if t.Destination.Dir == "" {
		t.Destination.Dir = DefaultDestinationDir
	}

	if t.Destination.Table == "" {
		t.Destination.Table = DefaultDestinationTable
	}

	// Set defaults for [server]
	if t.Server.ListenAddress == "" {
		t.Server.ListenAddress = DefaultListenAddress
	}

	if t.Server.MaxBodySize == 0 {
		t.Server.MaxBodySize = DefaultMaxBodySize
	}

	if t.Server.CacheTTL == 0 {
		t.Server.CacheTTL = DefaultCacheTTL
	}

	return nil
}

func Validate(c *Config) error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateCLIArgs(c.CLI); err != nil {
		return errors.Wrap(err, "error validating CLI args")
	}

	if err := validateTOML(c.TOML); err != nil {
		return errors.Wrap(err, "error validating toml config")
	}

	return nil
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [config]
	if err := validateTOMLConfig(t.Config); err != nil {
		return errors.Wrap(err, "config error(s)")
	}

	// Validate [source]
	if err := validateTOMLSource(t.Source); err != nil {
		return errors.Wrap(err, "error validating toml [source]")
	}

	// Validate [destination]
	if err := validateTOMLDestination(t.Destination); err != nil {
		return errors.Wrap(err, "destination error(s)")
	}

	// Validate [server]
	if err := validateTOMLServer(t.Server); err != nil {
		return errors.Wrap(err, "server error(s)")
	}

	return nil
}

func validateTOMLConfig(c *TOMLConfig) error {
	if c == nil {
		return errors.New("config cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("config.log_level %s is invalid", c.LogLevel)
	}

	if c.NumWorkers < MinNumWorkers || c.NumWorkers > MaxNumWorkers {
		return errors.Errorf("config.num_workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	if c.CheckpointInterval < MinCheckpointInterval || c.CheckpointInterval > MaxCheckpointInterval {
		return errors.Errorf("config.checkpoint_interval must be between %s and %s", MinCheckpointInterval, MaxCheckpointInterval)
	}

	if c.CheckpointFile == "" {
		return errors.New("config.checkpoint_file cannot be empty")
	}

	if c.MaxOutputSize < 0 {
		return errors.New("config.max_output_size cannot be negative")
	}

	return nil
}

func validateTOMLSource(s *TOMLSource) error {
	if s == nil {
		return errors.New("source cannot be empty")
	}

	if _, err := container.ParseEncoding(s.Encoding); err != nil {
		return errors.Wrap(err, "source.encoding is invalid")
	}

	if _, err := container.ParseFormat(s.Container); err != nil {
		return errors.Wrap(err, "source.container is invalid")
	}

	if s.SkipBytes < 0 || s.SkipBytes > MaxSkipBytes {
		return errors.Errorf("source.skip_bytes must be between 0 and %d", MaxSkipBytes)
	}

	return nil
}

func validateTOMLDestination(d *TOMLDestination) error {
	if d == nil {
		return errors.New("destination cannot be empty")
	}

	if _, ok := validDestinationTypes[d.Type]; !ok {
		return errors.Errorf("destination.type %s is invalid", d.Type)
	}

	if d.Type == "file" {
		if d.Dir == "" {
			return errors.New("destination.dir cannot be empty")
		}

		if strings.ContainsAny(d.Suffix, `/\`) {
			return errors.Errorf("destination.suffix %s cannot contain path separators", d.Suffix)
		}

		return nil
	}

	if d.DSN == "" {
		return errors.New("destination.dsn cannot be empty")
	}

	if !validIdentifier.MatchString(d.Table) {
		return errors.Errorf("destination.table %s is not a valid identifier", d.Table)
	}

	var err error

	switch d.Type {
	case "mysql":
		_, err = parsedsn.MySQL(d.DSN)
	case "postgres":
		_, err = parsedsn.Postgres(d.DSN)
	}

	if err != nil {
		return errors.Wrap(err, "error validating destination.dsn")
	}

	return nil
}

func validateTOMLServer(s *TOMLServer) error {
	if s == nil {
		return errors.New("server cannot be empty")
	}

	if s.ListenAddress == "" {
		return errors.New("server.listen_address cannot be empty")
	}

	if s.MaxBodySize <= 0 {
		return errors.New("server.max_body_size must be positive")
	}

	if s.CacheTTL < MinCacheTTL || s.CacheTTL > MaxCacheTTL {
		return errors.Errorf("server.cache_ttl must be between %s and %s", MinCacheTTL, MaxCacheTTL)
	}

	if s.RedisDB < 0 {
		return errors.New("server.redis_db cannot be negative")
	}

	return nil
}

func readCLIArgs() (*CLI, error) {
	cli := &CLI{}
	cli.Ctx = kong.Parse(cli,
		kong.Name("unflate"),
		kong.Description("DEFLATE payload extractor and decode service"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		})

	if err := validateCLIArgs(cli); err != nil {
		return nil, errors.Wrap(err, "error validating args")
	}

	return cli, nil
}

// readTOML loads file if it exists. A missing file means all defaults.
func readTOML(file string) (*TOML, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "error reading file")
		}

		logrus.Debugf("config file '%s' not found, using defaults", file)

		data = nil
	}

	return parseTOML(data)
}

func parseTOML(data []byte) (*TOML, error) {
	tomlConfig := &TOML{}

	if err := toml.Unmarshal(data, tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error parsing TOML config")
	}

	// Set defaults
	if err := setTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	return tomlConfig, nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if cli.Command() == CommandExtract && len(cli.Extract.Files) == 0 {
		return errors.New("extract requires at least one input file")
	}

	return nil
}

// Copied from https://www.kelche.co/blog/go/toml/
type duration time.Duration

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

func (d duration) String() string {
	return time.Duration(d).String()
}

// Duration returns d as a time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}
