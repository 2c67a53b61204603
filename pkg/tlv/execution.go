package tlv

// Payload sizes for the execution schemas.
const (
	OrderRequestSize = 56
	OrderAckSize     = 24
	FillSize         = 72
	CancelSize       = 24
)

// Order sides and types.
const (
	OrderSideBuy  uint8 = 0
	OrderSideSell uint8 = 1

	OrderTypeLimit  uint8 = 0
	OrderTypeMarket uint8 = 1
)

// OrderRequest asks the execution engine to place an order. Quantity and
// price are 8-decimal fixed-point.
type OrderRequest struct {
	OrderID       uint64
	InstrumentKey [16]uint8
	Side          uint8
	OrderType     uint8
	Reserved      [6]uint8
	Quantity      uint64
	Price         int64
	TimestampNs   uint64
}

func (o *OrderRequest) Encode() ([]byte, error) { return encodeBin(o, OrderRequestSize) }

func DecodeOrderRequest(data []byte) (*OrderRequest, error) {
	var o OrderRequest
	if err := decodeBin(data, &o, OrderRequestSize); err != nil {
		return nil, err
	}
	return &o, nil
}

// Ack statuses.
const (
	AckAccepted uint8 = 0
	AckRejected uint8 = 1
)

// OrderAck is the gateway's response to an OrderRequest.
type OrderAck struct {
	OrderID     uint64
	Status      uint8
	Reason      uint8
	Reserved    [6]uint8
	TimestampNs uint64
}

func (o *OrderAck) Encode() ([]byte, error) { return encodeBin(o, OrderAckSize) }

func DecodeOrderAck(data []byte) (*OrderAck, error) {
	var o OrderAck
	if err := decodeBin(data, &o, OrderAckSize); err != nil {
		return nil, err
	}
	return &o, nil
}

// Fill reports a full or partial execution.
type Fill struct {
	OrderID       uint64
	FillID        uint64
	InstrumentKey [16]uint8
	Quantity      uint64
	Price         int64
	FeeUsd        int64 // 8-decimal USD
	Side          uint8
	Liquidity     uint8 // 0=maker 1=taker
	Reserved      [6]uint8
	TimestampNs   uint64
}

func (f *Fill) Encode() ([]byte, error) { return encodeBin(f, FillSize) }

func DecodeFill(data []byte) (*Fill, error) {
	var f Fill
	if err := decodeBin(data, &f, FillSize); err != nil {
		return nil, err
	}
	return &f, nil
}

// Cancel requests (or, as CancelAck, confirms) order cancellation.
type Cancel struct {
	OrderID     uint64
	Reason      uint8
	Reserved    [7]uint8
	TimestampNs uint64
}

func (c *Cancel) Encode() ([]byte, error) { return encodeBin(c, CancelSize) }

func DecodeCancel(data []byte) (*Cancel, error) {
	var c Cancel
	if err := decodeBin(data, &c, CancelSize); err != nil {
		return nil, err
	}
	return &c, nil
}
