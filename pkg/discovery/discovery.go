// Package discovery advertises the LCTP endpoints of a car over mDNS and
// finds cars on the local network.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/golang/glog"

	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// Service types and domain.
const (
	ServiceStream   = "_lctp._tcp"
	ServiceDatagram = "_lctp._udp"
	Domain          = "local."
)

// TXT record keys.
const (
	TXTType = "type"
	TXTID   = "id"
)

// Service is one advertised endpoint.
type Service struct {
	Instance string
	Type     string
	Port     int
	Text     []string
}

// Advertiser publishes services while running.
type Advertiser struct {
	Services []Service

	// Iface limits advertising to one interface when set.
	Iface string

	lock    sync.Mutex
	servers []*zeroconf.Server
}

var _ fx.Runnable = &Advertiser{}

// NewAdvertiser creates an Advertiser.
func NewAdvertiser(services ...Service) *Advertiser {
	return &Advertiser{Services: services}
}

// TXT builds TXT records from key/value pairs.
func TXT(kv map[string]string) []string {
	txt := make([]string, 0, len(kv))
	for k, v := range kv {
		txt = append(txt, k+"="+v)
	}
	return txt
}

// ParseTXT is the reverse of TXT.
func ParseTXT(txt []string) map[string]string {
	kv := make(map[string]string, len(txt))
	for _, item := range txt {
		if k, v, ok := strings.Cut(item, "="); ok {
			kv[k] = v
		} else {
			kv[item] = ""
		}
	}
	return kv
}

// PortOf extracts the port of a listening address.
func PortOf(addr net.Addr) (int, error) {
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

// Name implements fx.Named.
func (a *Advertiser) Name() string {
	return "mdns"
}

func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.Iface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(a.Iface)
	if err != nil {
		return nil, err
	}
	return []net.Interface{*iface}, nil
}

// Start registers all services.
func (a *Advertiser) Start() error {
	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	for _, svc := range a.Services {
		server, err := zeroconf.Register(svc.Instance, svc.Type, Domain, svc.Port, svc.Text, ifaces)
		if err != nil {
			a.shutdownLocked()
			return fmt.Errorf("register %s %s: %w", svc.Instance, svc.Type, err)
		}
		glog.Infof("Advertising %s.%s%s port %d", svc.Instance, svc.Type, Domain, svc.Port)
		a.servers = append(a.servers, server)
	}
	return nil
}

func (a *Advertiser) shutdownLocked() {
	for _, server := range a.servers {
		server.Shutdown()
	}
	a.servers = nil
}

// Stop withdraws all services.
func (a *Advertiser) Stop() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.shutdownLocked()
}

// Run implements fx.Runnable.
func (a *Advertiser) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}

// Found is a car endpoint found by Browse.
type Found struct {
	Instance string
	Type     string
	ID       string
	Addrs    []net.IP
	Port     int
}

// Endpoint returns host:port using the first address.
func (f Found) Endpoint() string {
	if len(f.Addrs) == 0 {
		return ""
	}
	return net.JoinHostPort(f.Addrs[0].String(), strconv.Itoa(f.Port))
}

func newFound(instance string, port int, text []string, addrs ...[]net.IP) Found {
	txt := ParseTXT(text)
	f := Found{
		Instance: instance,
		Type:     txt[TXTType],
		ID:       txt[TXTID],
		Port:     port,
	}
	for _, ips := range addrs {
		f.Addrs = append(f.Addrs, ips...)
	}
	return f
}

func foundFromEntry(entry *zeroconf.ServiceEntry) Found {
	return newFound(entry.Instance, entry.Port, entry.Text, entry.AddrIPv4, entry.AddrIPv6)
}

// Browse looks up service until ctx is done and calls fn for every
// instance found.
func Browse(ctx context.Context, service string, fn func(Found)) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	var wg sync.WaitGroup
	wg.Add(1)
	go func(entries, removed <-chan *zeroconf.ServiceEntry) {
		defer wg.Done()
		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if seen[entry.Instance] {
					continue
				}
				seen[entry.Instance] = true
				fn(foundFromEntry(entry))
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				delete(seen, entry.Instance)
			case <-ctx.Done():
				return
			}
		}
	}(entries, removed)
	err := zeroconf.Browse(ctx, service, Domain, entries, removed)
	wg.Wait()
	return err
}
