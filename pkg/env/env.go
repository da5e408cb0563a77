// Package env loads the configuration of the legocar programs and
// assembles their runtime environment.
//
// Values are resolved in this order, later ones win: built-in defaults,
// the YAML file named by --config (or LEGOCAR_CONFIG), LEGOCAR_* environment
// variables and finally the command line. The environment variable of a
// flag is its name upper cased with dashes replaced by underscores, e.g.
// --idle-timeout is LEGOCAR_IDLE_TIMEOUT.
package env

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes all environment variables.
const EnvPrefix = "LEGOCAR_"

// ConfigFlag names the flag holding the YAML file.
const ConfigFlag = "config"

// EnvName returns the environment variable overriding a flag.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// MachineID returns an ID of this machine which is stable across reboots.
// It falls back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID("legocar")
	if err == nil && len(id) >= 12 {
		return id[:12]
	}
	glog.V(1).Infof("Machine ID unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}

// configPath finds the value of --config/-c in args without parsing the
// other flags.
func configPath(args []string) string {
	var path string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		for _, name := range []string{"--" + ConfigFlag, "-c"} {
			if arg == name && i+1 < len(args) {
				path = args[i+1]
				i++
			} else if strings.HasPrefix(arg, name+"=") {
				path = arg[len(name)+1:]
			}
		}
	}
	return path
}

// LoadYAML decodes the file at path into conf. Fields absent from the
// file keep their values.
func LoadYAML(path string, conf interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load resolves conf whose fields are already bound to flags in fs. It
// adds the --config flag to fs and parses args.
func Load(fs *pflag.FlagSet, args []string, conf interface{}) error {
	var path string
	fs.StringVarP(&path, ConfigFlag, "c", "", "YAML configuration file")
	if path = configPath(args); path == "" {
		path = os.Getenv(EnvName(ConfigFlag))
	}
	if path != "" {
		if err := LoadYAML(path, conf); err != nil {
			return err
		}
	}
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == ConfigFlag {
			return
		}
		if val, ok := os.LookupEnv(EnvName(f.Name)); ok {
			if err := fs.Set(f.Name, val); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", EnvName(f.Name), err))
			}
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return fs.Parse(args)
}

// BridgeGoFlags exposes the flags registered on the standard flag package
// (glog's -v, -logtostderr, ...) on fs.
func BridgeGoFlags(fs *pflag.FlagSet) {
	fs.AddGoFlagSet(flag.CommandLine)
}

// MarkGoFlagsParsed keeps glog from complaining about unparsed flags once
// fs was parsed.
func MarkGoFlagsParsed() {
	flag.CommandLine.Parse(nil)
}
