package kafka

import "github.com/segmentio/kafka-go"

// headerCarrier adapts a plain map to the otel TextMapCarrier on the
// producer side; injected trace context is rendered into wire headers.
type headerCarrier map[string]string

func (c headerCarrier) Get(key string) string { return c[key] }
func (c headerCarrier) Set(key, val string)   { c[key] = val }

func (c headerCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

func (c headerCarrier) ToKafka() []kafka.Header {
	out := make([]kafka.Header, 0, len(c))
	for k, v := range c {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// wireHeaders is the consumer-side carrier over received message headers.
// Extraction only reads; Set is a no-op.
type wireHeaders []kafka.Header

func (h wireHeaders) Get(key string) string {
	for _, hd := range h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

func (h wireHeaders) Set(string, string) {}

func (h wireHeaders) Keys() []string {
	out := make([]string, 0, len(h))
	for _, hd := range h {
		out = append(out, hd.Key)
	}
	return out
}
