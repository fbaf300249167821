package codec

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"order-shop/message"
)

func sampleItems() []message.FullOrderItem {
	return []message.FullOrderItem{
		{
			Order: message.Order{ID: 1, Status: "created", Date: "2024-03-01 10:00:00"},
			Item:  message.OrderItem{ID: 11, Name: "Keyboard", Quantity: 2, UnitPrice: 4999},
		},
		{
			Order: message.Order{ID: 2, Status: "shipped", Date: "2024-03-02 12:30:00"},
			Item:  message.OrderItem{ID: 12, Name: "Bildschirm 27\" Ü", Quantity: 1, UnitPrice: 19900},
		},
		{
			Order: message.Order{ID: -3, Status: "", Date: ""},
			Item:  message.OrderItem{ID: 0, Name: "", Quantity: 0, UnitPrice: -1},
		},
	}
}

func TestRecordSize(t *testing.T) {
	if RecordSize != 361 {
		t.Fatalf("RecordSize changed: got %d, want 361", RecordSize)
	}
}

func TestBinaryCodec(t *testing.T) {
	binaryCodec := &BinaryCodec{}
	items := sampleItems()

	data, err := binaryCodec.Encode(items)
	if err != nil {
		t.Fatalf("BinaryCodec Encode failed: %v", err)
	}
	if len(data) != len(items)*RecordSize {
		t.Fatalf("payload length: got %d, want %d", len(data), len(items)*RecordSize)
	}

	var decoded []message.FullOrderItem
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("BinaryCodec Decode failed: %v", err)
	}
	if len(decoded) != len(items) {
		t.Fatalf("record count: got %d, want %d", len(decoded), len(items))
	}
	for i := range items {
		if decoded[i] != items[i] {
			t.Errorf("record %d mismatch: got %+v, want %+v", i, decoded[i], items[i])
		}
	}
}

func TestBinaryLayoutIsBigEndian(t *testing.T) {
	data := EncodeRecords(sampleItems()[:1])

	if got := binary.BigEndian.Uint32(data[0:4]); got != 1 {
		t.Errorf("order id at offset 0: got %d", got)
	}
	if got := string(data[4:11]); got != "created" {
		t.Errorf("status at offset 4: got %q", got)
	}
	if data[4+7] != 0 {
		t.Error("status must be NUL-terminated")
	}
	if got := binary.BigEndian.Uint32(data[86:90]); got != 11 {
		t.Errorf("item id at offset 86: got %d", got)
	}
	if got := binary.BigEndian.Uint64(data[345:353]); got != uint64(len("Keyboard")) {
		t.Errorf("name length at offset 345: got %d", got)
	}
	if got := binary.BigEndian.Uint32(data[357:361]); got != 4999 {
		t.Errorf("unit price at offset 357: got %d", got)
	}
}

func TestBinaryCodecTruncatesLongText(t *testing.T) {
	item := message.FullOrderItem{
		Order: message.Order{ID: 1, Status: strings.Repeat("x", 100), Date: strings.Repeat("y", 100)},
		Item:  message.OrderItem{ID: 1, Name: strings.Repeat("z", 1000)},
	}
	data := EncodeRecords([]message.FullOrderItem{item})
	if len(data) != RecordSize {
		t.Fatalf("expect one record, got %d bytes", len(data))
	}
	decoded, err := DecodeRecords(data)
	if err != nil {
		t.Fatal(err)
	}
	got := decoded[0]
	if len(got.Order.Status) != message.MaxStatusLen || len(got.Order.Date) != message.MaxDateLen || len(got.Item.Name) != message.MaxItemNameLen {
		t.Fatalf("unexpected lengths: %d %d %d", len(got.Order.Status), len(got.Order.Date), len(got.Item.Name))
	}
}

func TestDecodeRejectsPartialRecord(t *testing.T) {
	data := EncodeRecords(sampleItems())
	_, err := DecodeRecords(data[:len(data)-1])
	if !errors.Is(err, ErrRecordSize) {
		t.Fatalf("expect ErrRecordSize, got %v", err)
	}
}

func TestDecodeRejectsBadNameLength(t *testing.T) {
	data := EncodeRecords(sampleItems()[:1])
	binary.BigEndian.PutUint64(data[345:353], 255)
	_, err := DecodeRecords(data)
	if !errors.Is(err, ErrNameLength) {
		t.Fatalf("expect ErrNameLength, got %v", err)
	}
}

func TestEmptyPayload(t *testing.T) {
	if data := EncodeRecords(nil); len(data) != 0 {
		t.Fatalf("expect empty payload, got %d bytes", len(data))
	}
	items, err := DecodeRecords(nil)
	if err != nil || len(items) != 0 {
		t.Fatalf("expect zero records, got %d, err %v", len(items), err)
	}
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}
	items := sampleItems()

	data, err := jsonCodec.Encode(items)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}
	if !strings.Contains(string(data), `"unit_price":4999`) {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded []message.FullOrderItem
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	if len(decoded) != len(items) || decoded[1] != items[1] {
		t.Errorf("JSON round trip mismatch: %+v", decoded)
	}
}

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Error("expect JSON codec")
	}
	if GetCodec(CodecTypeBinary).Type() != CodecTypeBinary {
		t.Error("expect binary codec")
	}
	if _, err := GetCodec(CodecTypeBinary).Encode("nope"); err == nil {
		t.Error("expect error for unsupported type")
	}
}

func TestParseCodecType(t *testing.T) {
	for _, ct := range []CodecType{CodecTypeJSON, CodecTypeBinary} {
		got, err := ParseCodecType(ct.String())
		if err != nil || got != ct {
			t.Fatalf("ParseCodecType(%q) = %v, %v", ct.String(), got, err)
		}
	}
	if _, err := ParseCodecType("yaml"); err == nil {
		t.Fatal("expect error for unknown format")
	}
}

func TestGetCodecBinaryDecodesWireRecords(t *testing.T) {
	items := sampleItems()
	var decoded []message.FullOrderItem
	if err := GetCodec(CodecTypeBinary).Decode(EncodeRecords(items), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(items) || decoded[0] != items[0] {
		t.Fatalf("decode mismatch: %+v", decoded)
	}
	// 命令行输出是缩进的 JSON
	data, err := GetCodec(CodecTypeJSON).Encode(items)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Fatalf("expect indented JSON, got %s", data)
	}
}
