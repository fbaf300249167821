package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"order-shop/message"
)

// FullOrderItem record layout, big-endian, no padding. Text slots are NUL-padded
// and always hold at least one NUL.
//
//	offset  size  field
//	     0     4  order id      int32
//	     4    50  order status  [50]byte
//	    54    32  order date    [32]byte
//	    86     4  item id       int32
//	    90   255  item name     [255]byte
//	   345     8  name length   uint64
//	   353     4  quantity      int32
//	   357     4  unit price    int32
const (
	statusSlot = message.MaxStatusLen + 1
	dateSlot   = message.MaxDateLen + 1
	nameSlot   = message.MaxItemNameLen + 1

	offOrderID  = 0
	offStatus   = offOrderID + 4
	offDate     = offStatus + statusSlot
	offItemID   = offDate + dateSlot
	offName     = offItemID + 4
	offNameLen  = offName + nameSlot
	offQuantity = offNameLen + 8
	offPrice    = offQuantity + 4

	// RecordSize is the encoded size of one FullOrderItem.
	RecordSize = offPrice + 4
)

var (
	ErrRecordSize = errors.New("codec: payload is not a whole number of records")
	ErrNameLength = errors.New("codec: item name length out of range")
)

type BinaryCodec struct{}

// Encode accepts []message.FullOrderItem, *[]message.FullOrderItem or a single
// message.FullOrderItem. Oversized text is truncated to its slot.
func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch items := v.(type) {
	case []message.FullOrderItem:
		return EncodeRecords(items), nil
	case *[]message.FullOrderItem:
		return EncodeRecords(*items), nil
	case message.FullOrderItem:
		return EncodeRecords([]message.FullOrderItem{items}), nil
	default:
		return nil, fmt.Errorf("BinaryCodec: unsupported type %T", v)
	}
}

// Decode fills v, which must be *[]message.FullOrderItem.
func (c *BinaryCodec) Decode(data []byte, v any) error {
	out, ok := v.(*[]message.FullOrderItem)
	if !ok {
		return errors.New("BinaryCodec: v must be *[]message.FullOrderItem")
	}
	items, err := DecodeRecords(data)
	if err != nil {
		return err
	}
	*out = items
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// EncodeRecords packs items back to back. An empty slice encodes to an empty payload.
func EncodeRecords(items []message.FullOrderItem) []byte {
	if len(items) == 0 {
		return nil
	}
	buf := make([]byte, len(items)*RecordSize)
	for i, item := range items {
		putRecord(buf[i*RecordSize:(i+1)*RecordSize], item.Bounded())
	}
	return buf
}

// RecordCount returns payloadSize / RecordSize, or ErrRecordSize if it does not divide.
func RecordCount(payloadSize int) (int, error) {
	if payloadSize%RecordSize != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrRecordSize, payloadSize)
	}
	return payloadSize / RecordSize, nil
}

// DecodeRecords unpacks a DISPLAY_ORDERS payload.
func DecodeRecords(data []byte) ([]message.FullOrderItem, error) {
	n, err := RecordCount(len(data))
	if err != nil {
		return nil, err
	}
	items := make([]message.FullOrderItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := getRecord(data[i*RecordSize : (i+1)*RecordSize])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func putRecord(buf []byte, f message.FullOrderItem) {
	binary.BigEndian.PutUint32(buf[offOrderID:], uint32(f.Order.ID))
	copy(buf[offStatus:offStatus+statusSlot-1], f.Order.Status)
	copy(buf[offDate:offDate+dateSlot-1], f.Order.Date)
	binary.BigEndian.PutUint32(buf[offItemID:], uint32(f.Item.ID))
	copy(buf[offName:offName+nameSlot-1], f.Item.Name)
	binary.BigEndian.PutUint64(buf[offNameLen:], uint64(len(f.Item.Name)))
	binary.BigEndian.PutUint32(buf[offQuantity:], uint32(f.Item.Quantity))
	binary.BigEndian.PutUint32(buf[offPrice:], uint32(f.Item.UnitPrice))
}

func getRecord(buf []byte) (message.FullOrderItem, error) {
	nameLen := binary.BigEndian.Uint64(buf[offNameLen:])
	if nameLen > message.MaxItemNameLen {
		return message.FullOrderItem{}, fmt.Errorf("%w: %d", ErrNameLength, nameLen)
	}
	return message.FullOrderItem{
		Order: message.Order{
			ID:     int32(binary.BigEndian.Uint32(buf[offOrderID:])),
			Status: cString(buf[offStatus : offStatus+statusSlot]),
			Date:   cString(buf[offDate : offDate+dateSlot]),
		},
		Item: message.OrderItem{
			ID:        int32(binary.BigEndian.Uint32(buf[offItemID:])),
			Name:      string(buf[offName : offName+int(nameLen)]),
			Quantity:  int32(binary.BigEndian.Uint32(buf[offQuantity:])),
			UnitPrice: int32(binary.BigEndian.Uint32(buf[offPrice:])),
		},
	}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
