package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeClient struct {
	connectErrs []error
	connected   bool
	connects    int
	published   []published
	subs        map[string]paho.MessageHandler
	unsubs      []string
	lock        sync.Mutex
}

var _ paho.Client = &fakeClient{}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *fakeClient) Connect() paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		return &fakeToken{err: err}
	}
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.lock.Lock()
	c.connected = false
	c.lock.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subs[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic := range filters {
		c.Subscribe(topic, 0, callback)
	}
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, topic := range topics {
		delete(c.subs, topic)
		c.unsubs = append(c.unsubs, topic)
	}
	return &fakeToken{}
}

func (c *fakeClient) AddRoute(topic string, callback paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

func (c *fakeClient) Published() []published {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]published(nil), c.published...)
}

func (c *fakeClient) Unsubscribed() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.unsubs...)
}

func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.lock.Lock()
	var handlers []paho.MessageHandler
	for pattern, h := range c.subs {
		if MatchTopic(topic, pattern) {
			handlers = append(handlers, h)
		}
	}
	c.lock.Unlock()
	for _, h := range handlers {
		h(c, &fakeMessage{topic: topic, payload: payload})
	}
	return len(handlers) > 0
}
