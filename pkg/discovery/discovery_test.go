package discovery

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTXT(t *testing.T) {
	txt := TXT(map[string]string{TXTType: "legocar", TXTID: "abc"})
	assert.ElementsMatch(t, []string{"type=legocar", "id=abc"}, txt)
	kv := ParseTXT(append(txt, "flag", "x=a=b"))
	assert.Equal(t, map[string]string{
		"type": "legocar",
		"id":   "abc",
		"flag": "",
		"x":    "a=b",
	}, kv)
}

func TestPortOf(t *testing.T) {
	port, err := PortOf(&net.TCPAddr{IP: net.IPv4zero, Port: 5080})
	require.NoError(t, err)
	assert.Equal(t, 5080, port)
	port, err = PortOf(&net.UDPAddr{IP: net.IPv6loopback, Port: 5081})
	require.NoError(t, err)
	assert.Equal(t, 5081, port)
}

func TestFound(t *testing.T) {
	f := newFound("car-abc", 5080, []string{"type=legocar", "id=abc"},
		[]net.IP{net.ParseIP("192.168.1.20")}, []net.IP{net.ParseIP("fe80::1")})
	assert.Equal(t, "car-abc", f.Instance)
	assert.Equal(t, "legocar", f.Type)
	assert.Equal(t, "abc", f.ID)
	assert.Len(t, f.Addrs, 2)
	assert.Equal(t, "192.168.1.20:5080", f.Endpoint())
	assert.Empty(t, Found{}.Endpoint())
}

func TestAdvertiserUnknownInterface(t *testing.T) {
	a := NewAdvertiser(Service{Instance: "car", Type: ServiceStream, Port: 5080})
	a.Iface = "no-such-interface0"
	assert.Error(t, a.Run(context.Background()))
}

func TestAdvertiserWithoutServices(t *testing.T) {
	a := NewAdvertiser()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}
