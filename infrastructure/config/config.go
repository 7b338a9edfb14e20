// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/version"
)

const (
	defaultConfigFilename   = "crowd.conf"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "crowd.log"
	defaultErrLogFilename   = "crowd_err.log"
	defaultRPCThreads       = 4
	defaultRPCWorkQueue     = 16
	defaultRPCServerTimeout = 30 * time.Second
	sampleConfigFilename    = "sample-crowd.conf"
)

var (
	// DefaultAppDir is the default home directory for crowd.
	DefaultAppDir = appDataDir("crowd")

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for crowd.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion       bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir            string        `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir            string        `long:"logdir" description:"Directory to log output."`
	DebugLevel        string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile           string        `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`
	RPCUser           string        `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	RPCPass           string        `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCBind           []string      `long:"rpcbind" description:"Add an interface/port to bind the RPC server to (default: loopback interfaces, effective only with -rpcallowip)"`
	RPCAllowIP        []string      `long:"rpcallowip" description:"Allow RPC connections from the specified source. Valid for <ip> are a single IP (e.g. 1.2.3.4), a network/netmask (e.g. 1.2.3.4/255.255.255.0) or a network/CIDR (e.g. 1.2.3.4/24). This option can be specified multiple times"`
	RPCPort           string        `long:"rpcport" description:"Listen for RPC connections on this port (default: network dependent)"`
	RPCThreads        int           `long:"rpcthreads" description:"Number of worker threads to service RPC calls"`
	RPCWorkQueue      int           `long:"rpcworkqueue" description:"Depth of the work queue to service RPC calls"`
	RPCServerTimeout  time.Duration `long:"rpcservertimeout" description:"Timeout during HTTP requests. Valid time units are {s, m, h}"`
	RPCSSL            bool          `long:"rpcssl" description:"No longer supported, use a TLS-terminating proxy in front of the RPC server instead"`
	DisableRPC        bool          `long:"norpc" description:"Disable built-in RPC server -- NOTE: The RPC server is disabled by default if no rpcuser/rpcpass is specified"`
	NetworkFlags
}

// Config defines the configuration options for crowd.
//
// See LoadConfig for details on the configuration load process.
type Config struct {
	*Flags
}

// LogFile returns the path of the main log file inside the resolved log
// directory.
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path of the error log file inside the resolved
// log directory.
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir, defaultErrLogFilename)
}

// appDataDir returns an operating system specific data directory for
// the given application name. On POSIX it is a dot folder in the home
// directory, on Windows and macOS the conventional application data
// locations are used.
func appDataDir(appName string) string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, strings.Title(appName))
		}
	case "darwin":
		if homeDir := os.Getenv("HOME"); homeDir != "" {
			return filepath.Join(homeDir, "Library", "Application Support", strings.Title(appName))
		}
	default:
		if homeDir := os.Getenv("HOME"); homeDir != "" {
			return filepath.Join(homeDir, "."+appName)
		}
	}

	return "."
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:       defaultConfigFile,
		AppDir:           DefaultAppDir,
		LogDir:           defaultLogDir,
		DebugLevel:       defaultLogLevel,
		RPCThreads:       defaultRPCThreads,
		RPCWorkQueue:     defaultRPCWorkQueue,
		RPCServerTimeout: defaultRPCServerTimeout,
	}
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfgFlags *Flags, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfgFlags, options)
	return parser
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in crowd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func LoadConfig() (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfgFlags
	preParser := newConfigParser(preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(cfgFlags, flags.Default)
	cfg := &Config{Flags: cfgFlags}
	if !preCfg.Simnet || preCfg.ConfigFile != defaultConfigFile {
		if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
			err := createDefaultConfigFile(preCfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default config file: %s\n", err)
			}
		}

		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			var pathErr *os.PathError
			if ok := errors.As(err, &pathErr); !ok {
				fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, err
			}
			configFileError = err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	// Multiple networks can't be selected simultaneously.
	funcName := "LoadConfig"
	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	cfg.AppDir = cleanAndExpandPath(cfg.AppDir)
	// Append the network type to the app directory so it is "namespaced"
	// per network.
	cfg.AppDir = filepath.Join(cfg.AppDir, cfg.NetParams().Name)

	// Logs directory is usually under the home directory, unless otherwise
	// specified.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.NetParams().Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	// The logging backend has to run before any subsystem log level is
	// raised, otherwise early log writes would block forever.
	logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())

	// Parse, validate, and set debug log level(s).
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := errors.Errorf("%s: %s", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Validate profile port number.
	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			str := "%s: The profile port must be between 1024 and 65535"
			err := errors.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// TLS termination was removed from the RPC server. Refuse to start
	// rather than silently serve plaintext to a user expecting TLS.
	if cfg.RPCSSL {
		str := "%s: TLS for the RPC server is no longer supported, use a reverse proxy such as stunnel in front of it instead"
		err := errors.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.RPCThreads < 1 {
		str := "%s: The rpcthreads option may not be less than 1 -- parsed [%d]"
		err := errors.Errorf(str, funcName, cfg.RPCThreads)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.RPCWorkQueue < 1 {
		str := "%s: The rpcworkqueue option may not be less than 1 -- parsed [%d]"
		err := errors.Errorf(str, funcName, cfg.RPCWorkQueue)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.RPCServerTimeout <= 0 {
		str := "%s: The rpcservertimeout option must be positive -- parsed [%s]"
		err := errors.Errorf(str, funcName, cfg.RPCServerTimeout)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Default the RPC port to the network-dependent one when it wasn't
	// configured explicitly.
	if cfg.RPCPort == "" {
		cfg.RPCPort = cfg.NetParams().RPCPort
	}
	if _, err := strconv.ParseUint(cfg.RPCPort, 10, 16); err != nil {
		str := "%s: Invalid rpcport -- parsed [%s]"
		err := errors.Errorf(str, funcName, cfg.RPCPort)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Validate the allowed sources early so a typo fails startup instead
	// of silently rejecting every client.
	for _, allowIP := range cfg.RPCAllowIP {
		if err := validateAllowIP(allowIP); err != nil {
			err := errors.Errorf("%s: %s", funcName, err.Error())
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// The RPC server is disabled if no username or password is provided.
	if cfg.RPCUser == "" || cfg.RPCPass == "" {
		cfg.DisableRPC = true
	}
	if cfg.DisableRPC {
		log.Infof("RPC service is disabled")
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%s", configFileError)
	}

	return cfg, nil
}

// validateAllowIP checks that the given -rpcallowip value is a single IP,
// a network/CIDR or a network/netmask specification.
func validateAllowIP(allowIP string) error {
	if !strings.Contains(allowIP, "/") {
		if ip := net.ParseIP(allowIP); ip == nil {
			return errors.Errorf("The rpcallowip value '%s' is not a valid IP address or network", allowIP)
		}
		return nil
	}
	if _, _, err := net.ParseCIDR(allowIP); err == nil {
		return nil
	}
	parts := strings.SplitN(allowIP, "/", 2)
	ip := net.ParseIP(parts[0])
	mask := net.ParseIP(parts[1])
	if ip == nil || mask == nil {
		return errors.Errorf("The rpcallowip value '%s' is not a valid IP address or network", allowIP)
	}
	return nil
}

// createDefaultConfigFile copies the file sample-crowd.conf to the given
// destination path, and populates it with some randomly generated RPC
// username and password.
func createDefaultConfigFile(destinationPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}

	// We assume sample config file path is same as binary.
	path, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return err
	}
	sampleConfigPath := filepath.Join(path, sampleConfigFilename)

	// We generate a random user and password.
	randomBytes := make([]byte, 20)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return err
	}
	generatedRPCUser := base64.StdEncoding.EncodeToString(randomBytes)

	_, err = rand.Read(randomBytes)
	if err != nil {
		return err
	}
	generatedRPCPass := base64.StdEncoding.EncodeToString(randomBytes)

	src, err := os.Open(sampleConfigPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.OpenFile(destinationPath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	// We copy every line from the sample config file to the destination,
	// only replacing the two lines for rpcuser and rpcpass.
	reader := bufio.NewReader(src)
	for err != io.EOF {
		var line string
		line, err = reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}

		if strings.HasPrefix(line, "rpcuser=") {
			line = "rpcuser=" + generatedRPCUser + "\n"
		} else if strings.HasPrefix(line, "rpcpass=") {
			line = "rpcpass=" + generatedRPCPass + "\n"
		}

		if _, err := dest.WriteString(line); err != nil {
			return err
		}
	}

	return nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
