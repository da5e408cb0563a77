// Package sh is the interactive LCTP shell behind carcli.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/pflag"

	"github.com/robotalks/legocar.go/pkg/discovery"
	"github.com/robotalks/legocar.go/pkg/env"
	"github.com/robotalks/legocar.go/pkg/lctp"
)

// ErrNotConnected is returned by commands needing a car.
var ErrNotConnected = errors.New("not connected")

// CmdFunc runs a command.
type CmdFunc func(s *Shell, c *ishell.Context) error

// Command is a shell command.
type Command struct {
	Name    string
	Aliases []string
	Help    string

	// Connected commands fail with ErrNotConnected without a car.
	Connected bool
	Run       CmdFunc
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.ClientConfig
	Client *lctp.Client

	// Dial connects to a car, lctp.Dial by default.
	Dial func(ctx context.Context, network, addr string) (*lctp.Client, error)

	lock sync.Mutex
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	evalOnly   bool
	outputJSON bool

	commands = []*Command{
		&ConnectCmd,
		&DisconnectCmd,
		&DiscoverCmd,
	}
)

// SetupFlags registers the shell flags.
func SetupFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&evalOnly, "eval", "e", evalOnly, "Evaluation only, no interactive shell")
	fs.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*Command) {
	commands = append(commands, cmds...)
}

// Commands returns the registered commands.
func Commands() []*Command {
	return commands
}

// New creates a new shell. The ishell front end is created by Run.
func New(conf *env.ClientConfig) *Shell {
	return &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Config:      conf,
		Dial:        lctp.Dial,
	}
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Invoke runs cmd in the context c.
func (s *Shell) Invoke(cmd *Command, c *ishell.Context) error {
	if cmd.Connected && s.CurrentClient() == nil {
		return ErrNotConnected
	}
	return cmd.Run(s, c)
}

func (s *Shell) ishellCmd(cmd *Command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.Name,
		Aliases: cmd.Aliases,
		Help:    cmd.Help,
		Func: func(c *ishell.Context) {
			if err := s.Invoke(cmd, c); err != nil {
				c.Err(err)
			}
		},
	}
}

// CurrentClient returns the connected client or nil.
func (s *Shell) CurrentClient() *lctp.Client {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.Client
}

// Context returns the context bounding one command.
func (s *Shell) Context() (context.Context, context.CancelFunc) {
	timeout := s.Config.Timeout
	if timeout <= 0 {
		timeout = lctp.DefaultClientTimeout
	}
	return context.WithTimeout(context.Background(), 2*timeout)
}

// Connect connects a car, replacing the current connection.
func (s *Shell) Connect(c *ishell.Context, network, addr string) error {
	ctx, cancel := s.Context()
	defer cancel()
	client, err := s.Dial(ctx, network, addr)
	if err != nil {
		return err
	}
	if s.Config.Timeout > 0 {
		client.Timeout = s.Config.Timeout
	}
	if _, err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("ping %s: %w", addr, err)
	}
	s.lock.Lock()
	prev := s.Client
	s.Client = client
	s.lock.Unlock()
	if prev != nil {
		prev.Close()
	}
	if c != nil {
		c.SetPrompt(fmt.Sprintf("%s/%s > ", addr, network))
	}
	return nil
}

// Disconnect sends DISCONNECT and closes the current connection.
func (s *Shell) Disconnect(c *ishell.Context) error {
	s.lock.Lock()
	client := s.Client
	s.Client = nil
	s.lock.Unlock()
	if client == nil {
		return nil
	}
	ctx, cancel := s.Context()
	defer cancel()
	err := client.Disconnect(ctx)
	client.Close()
	if c != nil {
		c.SetPrompt(unconnectedPrompt)
	}
	return err
}

// Output prints v as JSON with OutputJSON, or text otherwise.
func (s *Shell) Output(c *ishell.Context, v interface{}, text string) error {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		c.Println(string(out))
		return nil
	}
	c.Println(text)
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(s.ishellCmd(cmd))
	}
	defer s.Disconnect(nil)

	if s.AutoConnect && s.Config.Addr != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Addr)
		}
		if err := s.Connect(nil, s.Config.Network, s.Config.Addr); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Addr, err)
		}
		s.Shell.SetPrompt(fmt.Sprintf("%s/%s > ", s.Config.Addr, s.Config.Network))
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// DiscoverTimeout bounds the discover command.
var DiscoverTimeout = 2 * time.Second

var (
	// ConnectCmd connects a car.
	ConnectCmd = Command{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ADDR [tcp|udp]]",
		Run: func(s *Shell, c *ishell.Context) error {
			addr, network := s.Config.Addr, s.Config.Network
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			if len(c.Args) > 1 {
				network = c.Args[1]
			}
			return s.Connect(c, network, addr)
		},
	}

	// DisconnectCmd disconnects current car.
	DisconnectCmd = Command{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Run: func(s *Shell, c *ishell.Context) error {
			return s.Disconnect(c)
		},
	}

	// DiscoverCmd lists the cars advertised over mDNS.
	DiscoverCmd = Command{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Run: func(s *Shell, c *ishell.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), DiscoverTimeout)
			defer cancel()
			found := []discovery.Found{}
			var lock sync.Mutex
			var wg sync.WaitGroup
			for _, service := range []string{discovery.ServiceStream, discovery.ServiceDatagram} {
				wg.Add(1)
				go func(service string) {
					defer wg.Done()
					discovery.Browse(ctx, service, func(f discovery.Found) {
						lock.Lock()
						found = append(found, f)
						lock.Unlock()
					})
				}(service)
			}
			wg.Wait()
			if s.OutputJSON {
				return s.Output(c, found, "")
			}
			if len(found) == 0 {
				c.Println("No cars found")
				return nil
			}
			for _, f := range found {
				c.Printf("%s/%s %s %s\n", f.Type, f.ID, f.Instance, f.Endpoint())
			}
			return nil
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	conf := env.NewClientConfig()
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	conf.SetupFlags(fs)
	SetupFlags(fs)
	env.BridgeGoFlags(fs)
	fs.SetInterspersed(false)
	if err := env.Load(fs, os.Args[1:], conf); err != nil {
		log.Fatalln(err)
	}
	env.MarkGoFlagsParsed()
	s := New(conf)
	s.AutoConnect = true
	s.Run(fs.Args()...)
}
