package grpcsvc

import (
	"testing"

	"google.golang.org/grpc/encoding"

	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodecV2(CodecName)
	if codec == nil {
		t.Fatal("json codec is not registered")
	}
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}

	data, err := codec.Marshal(&orders.TakeOrderInput{ID: "order-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"order-1"}` {
		t.Fatalf("unexpected payload %s", data)
	}

	var empty orders.TakeOrderInput
	if err := codec.Unmarshal(nil, &empty); err != nil {
		t.Fatalf("empty payload should decode to zero value: %v", err)
	}
	if err := codec.Unmarshal([]byte("{"), &empty); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := codec.Marshal(func() {}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
